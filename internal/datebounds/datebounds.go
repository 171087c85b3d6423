/**
 * Batch Date Bounds (§4.7)
 *
 * Resolves the batch commencement/completion timestamps from dual
 * structured/text-derived sources across the first five pages, then
 * validates every other date-like value falls within the resulting window
 * (with 24h tolerance on each side).
 */

package datebounds

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

// Role distinguishes batch commencement from batch completion; both run
// through the identical dual-path extraction.
type Role string

const (
	RoleCommencement Role = "commencement"
	RoleCompletion   Role = "completion"
)

// Confidence is the reconciliation confidence for the resolved bounds.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Bounds is the reconciled commencement/completion window.
type Bounds struct {
	Commencement *time.Time
	Completion   *time.Time
	Confidence   Confidence
}

// PageInput is one page's worth of extraction surface.
type PageInput struct {
	PageNumber int
	Values     []model.ExtractedValue
	RawText    string
}

const maxPagesScanned = 5

var (
	commencementPattern = regexp.MustCompile(`(?i)date\s*&\s*time\s+of\s+batch\s+commencement|batch\s+commencement\s+date(?:/time)?|commencement\s+date(?:/time)?|start\s+date(?:/time)?|manufacturing\s+start|production\s+start`)
	completionPattern   = regexp.MustCompile(`(?i)date\s*&\s*time\s+of\s+batch\s+completion|batch\s+completion\s+date(?:/time)?|completion\s+date(?:/time)?|end\s+date(?:/time)?|manufacturing\s+end|production\s+end`)
)

func labelPattern(role Role) *regexp.Regexp {
	if role == RoleCommencement {
		return commencementPattern
	}
	return completionPattern
}

var (
	numericDateRe = regexp.MustCompile(`(\d{1,2})[/\-.\\](\d{1,2})[/\-.\\](\d{2,4})`)
	monthNameRe   = regexp.MustCompile(`(?i)(\d{1,2})\s+([A-Za-z]{3,})\s+(\d{2,4})`)
	timeRe        = regexp.MustCompile(`(\d{1,2})[:. ](\d{2})`)
)

var monthAbbrev = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// fixDigitConfusion applies the OCR digit-confusion substitution (|, l, I →
// 1; O → 0) ahead of numeric date parsing. It is never applied to the
// month-name form, since month abbreviations legitimately contain these
// letters (e.g. "Oct").
func fixDigitConfusion(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '|', 'l', 'I':
			return '1'
		case 'O':
			return '0'
		default:
			return r
		}
	}, s)
}

func normalizeYear(y int) int {
	if y >= 100 {
		return y
	}
	if y > 50 {
		return 1900 + y
	}
	return 2000 + y
}

// ParseDate finds the first recognized date anywhere in text and returns
// its calendar date component.
func ParseDate(text string) (year, month, day int, ok bool) {
	fixed := fixDigitConfusion(text)
	if m := numericDateRe.FindStringSubmatch(fixed); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		y = normalizeYear(y)
		if d >= 1 && d <= 31 && mo >= 1 && mo <= 12 {
			return y, mo, d, true
		}
	}
	if m := monthNameRe.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		abbrevLen := 3
		if len(m[2]) < abbrevLen {
			abbrevLen = len(m[2])
		}
		mo, known := monthAbbrev[strings.ToLower(m[2][:abbrevLen])]
		y, _ := strconv.Atoi(m[3])
		y = normalizeYear(y)
		if known && d >= 1 && d <= 31 {
			return y, mo, d, true
		}
	}
	return 0, 0, 0, false
}

// ParseTime finds the first HH:MM / HH.MM / HH MM occurrence in text.
func ParseTime(text string) (hour, minute int, ok bool) {
	m := timeRe.FindStringSubmatch(fixDigitConfusion(text))
	if m == nil {
		return 0, 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	if h > 23 || mi > 59 {
		return 0, 0, false
	}
	return h, mi, true
}

// ParseDateTime combines ParseDate and ParseTime over the same string,
// defaulting to midnight when no time is present. The matched date is
// blanked out before the time is read, so its own digits are not taken for
// a time.
func ParseDateTime(text string) (time.Time, bool) {
	y, mo, d, ok := ParseDate(text)
	if !ok {
		return time.Time{}, false
	}
	timeText := text
	if loc := numericDateRe.FindStringIndex(fixDigitConfusion(text)); loc != nil {
		timeText = text[:loc[0]] + ";" + text[loc[1]:]
	} else if loc := monthNameRe.FindStringIndex(text); loc != nil {
		timeText = text[:loc[0]] + ";" + text[loc[1]:]
	}
	h, mi, _ := ParseTime(timeText)
	return time.Date(y, time.Month(mo), d, h, mi, 0, 0, time.UTC), true
}

func pathA(role Role, values []model.ExtractedValue) (time.Time, bool) {
	re := labelPattern(role)
	for _, v := range values {
		if re.MatchString(v.Source.FieldLabel) {
			if t, ok := ParseDateTime(v.RawValue); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func pathB(role Role, rawText string) (time.Time, bool) {
	if rawText == "" {
		return time.Time{}, false
	}
	re := labelPattern(role)
	lines := strings.Split(rawText, "\n")
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		if idx := strings.Index(line, ":"); idx != -1 {
			if t, ok := ParseDateTime(line[idx+1:]); ok {
				return t, true
			}
		}
		if t, ok := ParseDateTime(line); ok {
			return t, true
		}
		if i+1 < len(lines) {
			if t, ok := ParseDateTime(lines[i+1]); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

type roleResult struct {
	structured  *time.Time
	textDerived *time.Time
}

func (r roleResult) resolved() *time.Time {
	if r.structured != nil {
		return r.structured
	}
	return r.textDerived
}

func (r roleResult) agree() bool {
	if r.structured == nil || r.textDerived == nil {
		return false
	}
	return r.structured.Equal(*r.textDerived)
}

func extractRole(role Role, pages []PageInput) roleResult {
	var res roleResult
	n := len(pages)
	if n > maxPagesScanned {
		n = maxPagesScanned
	}
	for _, p := range pages[:n] {
		if res.structured == nil {
			if t, ok := pathA(role, p.Values); ok {
				tCopy := t
				res.structured = &tCopy
			}
		}
		if res.textDerived == nil {
			if t, ok := pathB(role, p.RawText); ok {
				tCopy := t
				res.textDerived = &tCopy
			}
		}
		if res.structured != nil && res.textDerived != nil {
			break
		}
	}
	return res
}

// Reconcile resolves Bounds across the first five pages and returns the
// extraction-stage alerts (missing values, confidence/reconciliation
// issues).
func Reconcile(ids *model.IDGenerator, pages []PageInput) (Bounds, []model.ValidationAlert) {
	commencement := extractRole(RoleCommencement, pages)
	completion := extractRole(RoleCompletion, pages)

	var alerts []model.ValidationAlert

	commencementMissing := commencement.resolved() == nil
	completionMissing := completion.resolved() == nil

	if commencementMissing {
		alerts = append(alerts, missingAlert(ids, RoleCommencement))
	}
	if completionMissing {
		alerts = append(alerts, missingAlert(ids, RoleCompletion))
	}

	bothRolesPresent := !commencementMissing && !completionMissing
	hasBothSources := func(r roleResult) bool { return r.structured != nil && r.textDerived != nil }
	bothFullyAgree := bothRolesPresent && hasBothSources(commencement) && hasBothSources(completion) &&
		commencement.agree() && completion.agree()
	anyDisagreement := (hasBothSources(commencement) && !commencement.agree()) ||
		(hasBothSources(completion) && !completion.agree())

	var confidence Confidence
	switch {
	case bothFullyAgree:
		confidence = ConfidenceHigh
	case commencementMissing && completionMissing:
		confidence = ConfidenceLow
	default:
		confidence = ConfidenceMedium
	}

	switch confidence {
	case ConfidenceLow:
		if commencement.structured != nil || commencement.textDerived != nil ||
			completion.structured != nil || completion.textDerived != nil {
			alerts = append(alerts, confidenceAlert(ids, "Batch date confidence is low; at least one bound could not be extracted from any source"))
		}
	case ConfidenceMedium:
		if bothRolesPresent && anyDisagreement {
			alerts = append(alerts, reconciliationAlert(ids))
		}
	}

	return Bounds{
		Commencement: commencement.resolved(),
		Completion:   completion.resolved(),
		Confidence:   confidence,
	}, alerts
}

func missingAlert(ids *model.IDGenerator, role Role) model.ValidationAlert {
	name := "Commencement"
	if role == RoleCompletion {
		name = "Completion"
	}
	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryMissingValue,
		Severity:        model.SeverityCritical,
		Title:           fmt.Sprintf("Batch %s Date Missing", name),
		Message:         fmt.Sprintf("No batch %s date/time could be extracted from the first %d pages", strings.ToLower(name), maxPagesScanned),
		RuleID:          model.RuleIDBatchDateMissing,
		SuggestedAction: fmt.Sprintf("Manually transcribe the batch %s date/time", strings.ToLower(name)),
	}
}

func confidenceAlert(ids *model.IDGenerator, message string) model.ValidationAlert {
	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryDataQuality,
		Severity:        model.SeverityMedium,
		Title:           "Batch Date Confidence Low",
		Message:         message,
		RuleID:          model.RuleIDBatchDateConfidence,
		SuggestedAction: "Manually verify the batch commencement and completion dates",
	}
}

func reconciliationAlert(ids *model.IDGenerator) model.ValidationAlert {
	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryDataQuality,
		Severity:        model.SeverityMedium,
		Title:           "Batch Date Reconciliation Disagreement",
		Message:         "Structured and text-derived extraction disagree on the batch commencement or completion date/time",
		RuleID:          model.RuleIDBatchDateReconciliation,
		SuggestedAction: "Manually verify the batch commencement and completion dates",
	}
}

const windowTolerance = 24 * time.Hour

// ValidateWindow checks every date/datetime value on a page against the
// reconciled bounds, excluding lines that declare the bounds themselves.
// It is a no-op until both bounds are resolved.
func ValidateWindow(ids *model.IDGenerator, bounds Bounds, pageNumber int, values []model.ExtractedValue, rawText string) []model.ValidationAlert {
	if bounds.Commencement == nil || bounds.Completion == nil {
		return nil
	}
	lower := bounds.Commencement.Add(-windowTolerance)
	upper := bounds.Completion.Add(windowTolerance)

	var alerts []model.ValidationAlert

	for _, v := range values {
		if v.ValueType != model.ValueDate && v.ValueType != model.ValueDatetime {
			continue
		}
		if commencementPattern.MatchString(v.Source.FieldLabel) || completionPattern.MatchString(v.Source.FieldLabel) {
			continue
		}
		t, ok := ParseDateTime(v.RawValue)
		if !ok {
			continue
		}
		if a, fires := windowAlert(ids, t, lower, upper, v.Source); fires {
			alerts = append(alerts, a)
		}
	}

	for _, line := range strings.Split(rawText, "\n") {
		if commencementPattern.MatchString(line) || completionPattern.MatchString(line) {
			continue
		}
		t, ok := ParseDateTime(line)
		if !ok {
			continue
		}
		if a, fires := windowAlert(ids, t, lower, upper, model.SourceLocation{PageNumber: pageNumber}); fires {
			alerts = append(alerts, a)
		}
	}

	return alerts
}

func windowAlert(ids *model.IDGenerator, t, lower, upper time.Time, source model.SourceLocation) (model.ValidationAlert, bool) {
	switch {
	case t.Before(lower):
		return model.ValidationAlert{
			ID:              ids.Next("alert"),
			Category:        model.CategorySequenceError,
			Severity:        model.SeverityHigh,
			Title:           "Date Before Batch Commencement",
			Message:         fmt.Sprintf("%s precedes batch commencement by more than 24 hours", t.Format("2006-01-02 15:04")),
			Source:          source,
			RuleID:          model.RuleIDBatchDateWindow,
			SuggestedAction: "Verify this date against the source document",
		}, true
	case t.After(upper):
		return model.ValidationAlert{
			ID:              ids.Next("alert"),
			Category:        model.CategorySequenceError,
			Severity:        model.SeverityHigh,
			Title:           "Date After Batch Completion",
			Message:         fmt.Sprintf("%s follows batch completion by more than 24 hours", t.Format("2006-01-02 15:04")),
			Source:          source,
			RuleID:          model.RuleIDBatchDateWindow,
			SuggestedAction: "Verify this date against the source document",
		}, true
	default:
		return model.ValidationAlert{}, false
	}
}
