/**
 * Pagination Analyzer (§4.6)
 *
 * Extracts "Page X of Y" declarations from OCR footers, tolerating common
 * digit/word confusions, and flags missing or duplicate page numbers
 * across the document.
 */

package pagination

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

const maxBareTotalPages = 500

var (
	pageWord  = `(?:page|poge|paqe|pa9e|paye|p\s*age)`
	ofWord    = `(?:of|0f)`
	rePageOf  = regexp.MustCompile(`(?i)` + pageWord + `\s+(\d+)\s+` + ofWord + `\s+(\d+)`)
	rePageSl  = regexp.MustCompile(`(?i)` + pageWord + `\s+(\d+)\s*/\s*(\d+)`)
	reBareOf  = regexp.MustCompile(`(?i)\b(\d+)\s+` + ofWord + `\s+(\d+)\b`)
)

// Extraction is one physical page's declared (current, total), if any.
type Extraction struct {
	PhysicalPage int
	Current      int
	Total        int
	Found        bool
}

// ExtractPageNumber attempts each accepted form in priority order: "Page X
// of Y", "Page X/Y", then bare "X of Y" (bounded to avoid false positives
// on unrelated numeric phrases).
func ExtractPageNumber(rawText string) (current, total int, ok bool) {
	if m := rePageOf.FindStringSubmatch(rawText); m != nil {
		if c, t, valid := parsePair(m[1], m[2]); valid {
			return c, t, true
		}
	}
	if m := rePageSl.FindStringSubmatch(rawText); m != nil {
		if c, t, valid := parsePair(m[1], m[2]); valid {
			return c, t, true
		}
	}
	if m := reBareOf.FindStringSubmatch(rawText); m != nil {
		if c, t, valid := parsePair(m[1], m[2]); valid && t <= maxBareTotalPages {
			return c, t, true
		}
	}
	return 0, 0, false
}

func parsePair(xs, ys string) (x, y int, ok bool) {
	x, err1 := strconv.Atoi(xs)
	y, err2 := strconv.Atoi(ys)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if x < 1 || x > y {
		return 0, 0, false
	}
	return x, y, true
}

type missingPagesDetails struct {
	MissingPages  string `json:"missingPages"`
	FoundCount    int    `json:"foundCount"`
	ExpectedCount int    `json:"expectedCount"`
	MissingCount  int    `json:"missingCount"`
}

// Analyze aggregates every physical page's extraction, emitting a
// missing_value alert when declared page numbers don't cover
// [1, expectedTotal] and a consistency_error alert for any declared page
// number repeated across physical pages.
func Analyze(ids *model.IDGenerator, extractions []Extraction) []model.ValidationAlert {
	totalVotes := make(map[int]int)
	byCurrent := make(map[int][]int) // declared X -> physical pages
	var order []int
	anyFound := false

	for _, e := range extractions {
		if !e.Found {
			continue
		}
		anyFound = true
		totalVotes[e.Total]++
		if _, ok := byCurrent[e.Current]; !ok {
			order = append(order, e.Current)
		}
		byCurrent[e.Current] = append(byCurrent[e.Current], e.PhysicalPage)
	}

	if !anyFound {
		return nil
	}

	expectedTotal := mode(totalVotes)

	foundXs := make(map[int]bool)
	for x := range byCurrent {
		foundXs[x] = true
	}

	var missing []int
	for x := 1; x <= expectedTotal; x++ {
		if !foundXs[x] {
			missing = append(missing, x)
		}
	}

	var alerts []model.ValidationAlert

	if len(missing) > 0 {
		details := missingPagesDetails{
			MissingPages:  FormatPageRanges(missing),
			FoundCount:    len(foundXs),
			ExpectedCount: expectedTotal,
			MissingCount:  len(missing),
		}
		raw, _ := json.Marshal(details)

		severity := model.SeverityHigh
		if len(missing) > 5 {
			severity = model.SeverityCritical
		}

		alerts = append(alerts, model.ValidationAlert{
			ID:              ids.Next("alert"),
			Category:        model.CategoryMissingValue,
			Severity:        severity,
			Title:           "Missing Pages",
			Message:         fmt.Sprintf("%d of %d expected pages are missing: %s", details.MissingCount, details.ExpectedCount, details.MissingPages),
			Details:         string(raw),
			RuleID:          model.RuleIDPageCompletenessMissing,
			SuggestedAction: "Confirm the complete batch record was scanned",
		})
	}

	sort.Ints(order)
	for _, x := range order {
		pages := byCurrent[x]
		if len(pages) < 2 {
			continue
		}
		alerts = append(alerts, model.ValidationAlert{
			ID:              ids.Next("alert"),
			Category:        model.CategoryConsistencyError,
			Severity:        model.SeverityMedium,
			Title:           "Duplicate Page Number",
			Message:         fmt.Sprintf("Page %d is declared on %d physical pages: %s", x, len(pages), intsToString(pages)),
			SuggestedAction: "Confirm physical pages were scanned in the correct order without duplication",
		})
	}

	return alerts
}

func mode(votes map[int]int) int {
	best, bestCount := 0, -1
	keys := make([]int, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if votes[k] > bestCount {
			best, bestCount = k, votes[k]
		}
	}
	return best
}

func intsToString(ints []int) string {
	sorted := append([]int(nil), ints...)
	sort.Ints(sorted)
	s := ""
	for i, v := range sorted {
		if i > 0 {
			s += ", "
		}
		s += strconv.Itoa(v)
	}
	return s
}

// FormatPageRanges renders a sorted-ascending, deduplicated page list as
// comma-separated runs, with runs of exactly two expanded to singletons
// rather than rendered as a range.
func FormatPageRanges(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	sorted := append([]int(nil), pages...)
	sort.Ints(sorted)

	var parts []string
	i := 0
	for i < len(sorted) {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		runLen := j - i + 1
		switch {
		case runLen >= 3:
			parts = append(parts, fmt.Sprintf("%d-%d", sorted[i], sorted[j]))
		case runLen == 2:
			parts = append(parts, strconv.Itoa(sorted[i]), strconv.Itoa(sorted[j]))
		default:
			parts = append(parts, strconv.Itoa(sorted[i]))
		}
		i = j + 1
	}

	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
