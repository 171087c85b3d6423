package pagination

import (
	"testing"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

// TestFormatPageRanges verifies testable property #5 exactly.
func TestFormatPageRanges(t *testing.T) {
	cases := []struct {
		in   []int
		want string
	}{
		{[]int{1, 2, 3, 5, 7, 8, 9, 15}, "1-3, 5, 7-9, 15"},
		{[]int{5, 6}, "5, 6"},
		{[]int{}, ""},
	}
	for _, c := range cases {
		got := FormatPageRanges(c.in)
		if got != c.want {
			t.Errorf("FormatPageRanges(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractPageNumberVariants(t *testing.T) {
	cases := []struct {
		text        string
		wantCurrent int
		wantTotal   int
		wantOK      bool
	}{
		{"Page 3 of 12", 3, 12, true},
		{"Poge 3 of 12", 3, 12, true},
		{"Pa9e 3 0f 12", 3, 12, true},
		{"Page 3/12", 3, 12, true},
		{"3 of 12 vials filled", 3, 12, true},
		{"Page 13 of 12", 0, 0, false}, // X > Y, rejected
		{"no page marker here", 0, 0, false},
	}
	for _, c := range cases {
		current, total, ok := ExtractPageNumber(c.text)
		if ok != c.wantOK {
			t.Errorf("ExtractPageNumber(%q) ok = %v, want %v", c.text, ok, c.wantOK)
			continue
		}
		if ok && (current != c.wantCurrent || total != c.wantTotal) {
			t.Errorf("ExtractPageNumber(%q) = (%d, %d), want (%d, %d)", c.text, current, total, c.wantCurrent, c.wantTotal)
		}
	}
}

// TestMissingPages mirrors scenario S4: ten physical pages declare "Page X
// of 12" for X in {1..8, 11, 12}, so 9 and 10 are missing.
func TestMissingPages(t *testing.T) {
	ids := model.NewIDGenerator()
	declared := []int{1, 2, 3, 4, 5, 6, 7, 8, 11, 12}
	var extractions []Extraction
	for i, x := range declared {
		extractions = append(extractions, Extraction{PhysicalPage: i + 1, Current: x, Total: 12, Found: true})
	}

	alerts := Analyze(ids, extractions)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 missing-pages alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.RuleID != model.RuleIDPageCompletenessMissing {
		t.Errorf("expected ruleId %s, got %s", model.RuleIDPageCompletenessMissing, a.RuleID)
	}
	if a.Severity != model.SeverityHigh {
		t.Errorf("expected high severity for 2 missing pages, got %s", a.Severity)
	}
	if a.Category != model.CategoryMissingValue {
		t.Errorf("expected missing_value category, got %s", a.Category)
	}
	if !containsSubstring(a.Details, `"missingPages":"9, 10"`) {
		t.Errorf("expected details to report missingPages 9, 10, got %s", a.Details)
	}
}

func TestMissingPagesSeverityEscalatesPastFive(t *testing.T) {
	ids := model.NewIDGenerator()
	declared := []int{1, 8, 9, 10, 11, 12}
	var extractions []Extraction
	for i, x := range declared {
		extractions = append(extractions, Extraction{PhysicalPage: i + 1, Current: x, Total: 12, Found: true})
	}
	alerts := Analyze(ids, extractions)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Severity != model.SeverityCritical {
		t.Errorf("expected critical severity for >5 missing pages, got %s", alerts[0].Severity)
	}
}

func TestNoExtractionsSkipsSilently(t *testing.T) {
	ids := model.NewIDGenerator()
	alerts := Analyze(ids, []Extraction{{PhysicalPage: 1, Found: false}})
	if alerts != nil {
		t.Errorf("expected nil alerts when no page yields pagination, got %v", alerts)
	}
}

func TestDuplicatePageNumber(t *testing.T) {
	ids := model.NewIDGenerator()
	extractions := []Extraction{
		{PhysicalPage: 1, Current: 1, Total: 3, Found: true},
		{PhysicalPage: 2, Current: 2, Total: 3, Found: true},
		{PhysicalPage: 3, Current: 2, Total: 3, Found: true},
	}
	alerts := Analyze(ids, extractions)
	var sawDuplicate bool
	for _, a := range alerts {
		if a.Category == model.CategoryConsistencyError {
			sawDuplicate = true
			if a.Severity != model.SeverityMedium {
				t.Errorf("expected medium severity for duplicate page, got %s", a.Severity)
			}
		}
	}
	if !sawDuplicate {
		t.Errorf("expected a consistency_error alert for the duplicated declared page 2")
	}
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
