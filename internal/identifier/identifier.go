/**
 * Identifier Reconciler (§4.5)
 *
 * Runs identically for batch and lot numbers. Two independent extraction
 * paths (structured field, raw text) feed a per-page decision, then a
 * cross-page majority vote resolves the document-level value.
 */

package identifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pharmalabs/bmrvalidate/internal/model"
	"github.com/pharmalabs/bmrvalidate/internal/normalize"
)

// Kind distinguishes the batch-number and lot-number instantiations of the
// reconciler; both run the identical algorithm parameterized on this.
type Kind string

const (
	KindBatch Kind = "batch"
	KindLot   Kind = "lot"
)

// Confidence is the three-level confidence scale used by the reconciler.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SourceType records which extraction path produced a page's recorded value.
type SourceType string

const (
	SourceStructured  SourceType = "structured"
	SourceTextDerived SourceType = "text-derived"
)

// PageRecord is one page's reconciled identifier value.
type PageRecord struct {
	PageNumber int
	Value      string
	Canonical  string
	Confidence Confidence
	SourceType SourceType
	Empty      bool
}

var batchVariants = []string{"batch", "butch", "betch", "botch", "balch", "bateh", "barch", "8atch", "ba1ch"}
var lotVariants = []string{"lot", "lat", "lct", "1ot", "l0t", "lo1"}

func variantsFor(k Kind) []string {
	if k == KindBatch {
		return batchVariants
	}
	return lotVariants
}

func conflictingWords(k Kind) []string {
	stoppers := []string{"date", "revision", "rev", "page", "signed", "initial", "time"}
	if k == KindBatch {
		return append(stoppers, lotVariants...)
	}
	return append(stoppers, batchVariants...)
}

// labelFieldPattern matches a whole field label: the identifier word,
// optionally followed by "no"/"no."/"number"/"#", optionally terminated by
// a colon/period or a separator that begins a combined field (e.g.
// "Batch No./Date"). Excludes shapes like "Batch Notes" or "Batch No
// Verified".
func labelFieldPattern(k Kind) *regexp.Regexp {
	alt := strings.Join(variantsFor(k), "|")
	pattern := `(?i)^(?:` + alt + `)(?:\s+(?:no\.?|number|#))?\s*(?:[:.]|[/&(].*)?$`
	return regexp.MustCompile(pattern)
}

// labelOccurrencePattern finds the identifier label inline within raw OCR
// text, for Path B.
func labelOccurrencePattern(k Kind) *regexp.Regexp {
	alt := strings.Join(variantsFor(k), "|")
	pattern := `(?i)\b(?:` + alt + `)\b\s*(?:no\.?|number|#)?\s*[:\-]?`
	return regexp.MustCompile(pattern)
}

var identifierTokenPattern = regexp.MustCompile(`^[A-Za-z0-9\-/]+$`)

// pathA scans extractedValues for the first value whose fieldLabel matches
// the recognizer. seen reports whether a label matched at all (even if its
// value is blank).
func pathA(k Kind, values []model.ExtractedValue) (value string, seen bool) {
	re := labelFieldPattern(k)
	for _, v := range values {
		if re.MatchString(strings.TrimSpace(v.Source.FieldLabel)) {
			return strings.TrimSpace(v.RawValue), true
		}
	}
	return "", false
}

// pathB scans the page's raw text for the same label shapes, examining the
// tail of the label's line and the following line for the first valid
// identifier token.
func pathB(k Kind, rawText string) (value string, seen bool) {
	if rawText == "" {
		return "", false
	}
	re := labelOccurrencePattern(k)
	lines := strings.Split(rawText, "\n")
	conflicts := conflictingWords(k)

	for i, line := range lines {
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		seen = true

		tail := line[loc[1]:]
		var next string
		if i+1 < len(lines) {
			next = lines[i+1]
		}
		tokens := append(strings.Fields(tail), strings.Fields(next)...)

		for _, tok := range tokens {
			tok = strings.Trim(tok, ".,;:()[]{}\"'")
			if tok == "" {
				continue
			}
			lower := strings.ToLower(tok)
			if startsWithAny(lower, conflicts) {
				break
			}
			if containsDigit(tok) && identifierTokenPattern.MatchString(tok) {
				return tok, true
			}
		}
	}
	return "", seen
}

func startsWithAny(s string, words []string) bool {
	for _, w := range words {
		if strings.HasPrefix(s, w) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// ExtractPage runs both paths for one page and reconciles per the §4.5
// decision table. record is nil when neither path observes the identifier
// label at all (the page simply carries no such field). alert is non-nil
// only for the two-distinct-values conflict case.
func ExtractPage(ids *model.IDGenerator, k Kind, pageNumber int, values []model.ExtractedValue, rawText string) (*PageRecord, *model.ValidationAlert) {
	aVal, aSeen := pathA(k, values)
	bVal, bSeen := pathB(k, rawText)

	switch {
	case aSeen && bSeen && aVal != "" && bVal != "":
		aCanon, _ := normalize.NormalizeSerialIdentifier(aVal)
		bCanon, _ := normalize.NormalizeSerialIdentifier(bVal)
		if aCanon == bCanon {
			return &PageRecord{PageNumber: pageNumber, Value: aVal, Canonical: aCanon, Confidence: ConfidenceHigh, SourceType: SourceStructured}, nil
		}
		alert := model.ValidationAlert{
			ID:              ids.Next("alert"),
			Category:        model.CategoryConsistencyError,
			Severity:        model.SeverityMedium,
			Title:           fmt.Sprintf("%s Reconciliation Mismatch", title(k)),
			Message:         fmt.Sprintf("Structured field reads %q but page text reads %q", aVal, bVal),
			Source:          model.SourceLocation{PageNumber: pageNumber},
			SuggestedAction: "Manually verify the identifier against the source document",
		}
		return &PageRecord{PageNumber: pageNumber, Value: aVal, Canonical: aCanon, Confidence: ConfidenceLow, SourceType: SourceStructured}, &alert

	case aSeen && aVal != "":
		canon, _ := normalize.NormalizeSerialIdentifier(aVal)
		return &PageRecord{PageNumber: pageNumber, Value: aVal, Canonical: canon, Confidence: ConfidenceMedium, SourceType: SourceStructured}, nil

	case bSeen && bVal != "":
		canon, _ := normalize.NormalizeSerialIdentifier(bVal)
		return &PageRecord{PageNumber: pageNumber, Value: bVal, Canonical: canon, Confidence: ConfidenceMedium, SourceType: SourceTextDerived}, nil

	case aSeen || bSeen:
		return &PageRecord{PageNumber: pageNumber, Empty: true}, nil

	default:
		return nil, nil
	}
}

// MissingValueAlert builds the per-page alert for an empty identifier
// field. Severity: batch critical, lot high.
func MissingValueAlert(ids *model.IDGenerator, k Kind, pageNumber int) model.ValidationAlert {
	severity := model.SeverityHigh
	if k == KindBatch {
		severity = model.SeverityCritical
	}
	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryMissingValue,
		Severity:        severity,
		Title:           fmt.Sprintf("%s Number Missing", title(k)),
		Message:         fmt.Sprintf("No %s number could be extracted for this page", k),
		Source:          model.SourceLocation{PageNumber: pageNumber},
		SuggestedAction: fmt.Sprintf("Manually transcribe the %s number from the source document", k),
	}
}

// Aggregate resolves the document-level majority value across every
// non-empty page record, per resolveMajorityValue (§4.5). records must
// already exclude empty-field pages.
func Aggregate(ids *model.IDGenerator, k Kind, records []PageRecord) []model.ValidationAlert {
	if len(records) == 0 {
		return nil
	}

	groups := make(map[string][]PageRecord)
	var order []string
	for _, r := range records {
		if _, ok := groups[r.Canonical]; !ok {
			order = append(order, r.Canonical)
		}
		groups[r.Canonical] = append(groups[r.Canonical], r)
	}

	maxCount := 0
	for _, g := range groups {
		if len(g) > maxCount {
			maxCount = len(g)
		}
	}

	var tied []string
	for _, canon := range order {
		if len(groups[canon]) == maxCount {
			tied = append(tied, canon)
		}
	}

	total := len(records)

	if len(tied) >= 2 {
		return []model.ValidationAlert{tieAlert(ids, k, groups, tied)}
	}

	majority := tied[0]
	if maxCount == total {
		return nil
	}

	var alerts []model.ValidationAlert
	alerts = append(alerts, consistencyAlert(ids, k, majority, maxCount, total))
	for _, canon := range order {
		if canon == majority {
			continue
		}
		for _, r := range groups[canon] {
			alerts = append(alerts, outlierAlert(ids, k, r))
		}
	}
	return alerts
}

func tieAlert(ids *model.IDGenerator, k Kind, groups map[string][]PageRecord, tied []string) model.ValidationAlert {
	var parts []string
	for _, canon := range tied {
		var pages []string
		for _, r := range groups[canon] {
			pages = append(pages, fmt.Sprintf("page %d", r.PageNumber))
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", canon, strings.Join(pages, ", ")))
	}
	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryDataQuality,
		Severity:        model.SeverityHigh,
		Title:           fmt.Sprintf("Ambiguous %s Number", title(k)),
		Message:         fmt.Sprintf("No single %s number has a clear majority across pages: %s", k, strings.Join(parts, "; ")),
		SuggestedAction: "Manually determine the correct identifier for this batch",
	}
}

func consistencyAlert(ids *model.IDGenerator, k Kind, majority string, maxCount, total int) model.ValidationAlert {
	severity := model.SeverityHigh
	if k == KindBatch {
		severity = model.SeverityCritical
	}
	ratio := float64(maxCount) / float64(total)
	label := confidenceLabel(ratio)
	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryConsistencyError,
		Severity:        severity,
		Title:           fmt.Sprintf("%s Number Inconsistency", title(k)),
		Message:         fmt.Sprintf("%d of %d pages agree on %s number %q (confidence %s)", maxCount, total, k, majority, label),
		SuggestedAction: fmt.Sprintf("Verify the %s number on the disagreeing pages", k),
	}
}

func confidenceLabel(ratio float64) string {
	switch {
	case ratio >= 0.8:
		return "high"
	case ratio >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

func outlierAlert(ids *model.IDGenerator, k Kind, r PageRecord) model.ValidationAlert {
	severity := model.SeverityMedium
	if k == KindBatch {
		severity = model.SeverityHigh
	}
	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryConsistencyError,
		Severity:        severity,
		Title:           fmt.Sprintf("%s Number Outlier", title(k)),
		Message:         fmt.Sprintf("Page %d reads %s number %q, which disagrees with the document majority", r.PageNumber, k, r.Value),
		Source:          model.SourceLocation{PageNumber: r.PageNumber},
		SuggestedAction: "Verify this page's identifier against the source document",
	}
}

func title(k Kind) string {
	if k == KindBatch {
		return "Batch"
	}
	return "Lot"
}
