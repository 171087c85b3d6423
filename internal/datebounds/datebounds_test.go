package datebounds

import (
	"testing"
	"time"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

func TestParseDateSlashSeparated(t *testing.T) {
	y, mo, d, ok := ParseDate("24/04/25")
	if !ok || y != 2025 || mo != 4 || d != 24 {
		t.Fatalf("ParseDate(24/04/25) = (%d,%d,%d,%v)", y, mo, d, ok)
	}
}

func TestParseDateTwoDigitYearBoundary(t *testing.T) {
	y, _, _, ok := ParseDate("01/01/51")
	if !ok || y != 1951 {
		t.Errorf("expected year>50 to map to 19xx, got %d ok=%v", y, ok)
	}
	y2, _, _, ok2 := ParseDate("01/01/50")
	if !ok2 || y2 != 2050 {
		t.Errorf("expected year<=50 to map to 20xx, got %d ok=%v", y2, ok2)
	}
}

func TestParseDateOCRDigitConfusion(t *testing.T) {
	y, mo, d, ok := ParseDate("O4/I2/25")
	if !ok {
		t.Fatalf("expected OCR-confused date to parse")
	}
	if y != 2025 || mo != 12 || d != 4 {
		t.Errorf("got (%d,%d,%d)", y, mo, d)
	}
}

func TestParseDateMonthName(t *testing.T) {
	y, mo, d, ok := ParseDate("24 Oct 2025")
	if !ok || y != 2025 || mo != 10 || d != 24 {
		t.Fatalf("ParseDate(24 Oct 2025) = (%d,%d,%d,%v)", y, mo, d, ok)
	}
}

func TestParseTimeVariants(t *testing.T) {
	cases := []string{"11:07", "11.07", "11 07"}
	for _, c := range cases {
		h, m, ok := ParseTime(c)
		if !ok || h != 11 || m != 7 {
			t.Errorf("ParseTime(%q) = (%d,%d,%v), want (11,7,true)", c, h, m, ok)
		}
	}
}

func commencementField(value string) []model.ExtractedValue {
	return []model.ExtractedValue{
		{RawValue: value, ValueType: model.ValueDatetime, Source: model.SourceLocation{FieldLabel: "Batch Commencement Date/Time"}},
	}
}

func completionField(value string) []model.ExtractedValue {
	return []model.ExtractedValue{
		{RawValue: value, ValueType: model.ValueDatetime, Source: model.SourceLocation{FieldLabel: "Batch Completion Date/Time"}},
	}
}

// TestDateOutsideWindow mirrors scenario S5: commencement 24/04/25 11:07,
// completion 26/04/25 18:30; a sampling date before commencement and a
// review date after completion must each fire once.
func TestDateOutsideWindow(t *testing.T) {
	ids := model.NewIDGenerator()
	pages := []PageInput{
		{PageNumber: 1, Values: append(commencementField("24/04/25 11:07"), completionField("26/04/25 18:30")...)},
	}
	bounds, alerts := Reconcile(ids, pages)
	if len(alerts) != 0 {
		t.Fatalf("expected no extraction alerts when both bounds resolve from one page, got %+v", alerts)
	}
	if bounds.Commencement == nil || bounds.Completion == nil {
		t.Fatalf("expected both bounds resolved")
	}

	samplingValues := []model.ExtractedValue{
		{RawValue: "20/04/25", ValueType: model.ValueDate, Source: model.SourceLocation{FieldLabel: "Sampling Date"}},
	}
	windowAlerts := ValidateWindow(ids, bounds, 7, samplingValues, "")
	if len(windowAlerts) != 1 {
		t.Fatalf("expected 1 before-commencement alert, got %d", len(windowAlerts))
	}
	if windowAlerts[0].Title != "Date Before Batch Commencement" {
		t.Errorf("expected 'Date Before Batch Commencement', got %q", windowAlerts[0].Title)
	}

	reviewValues := []model.ExtractedValue{
		{RawValue: "01/05/25", ValueType: model.ValueDate, Source: model.SourceLocation{FieldLabel: "Review Date"}},
	}
	windowAlerts2 := ValidateWindow(ids, bounds, 7, reviewValues, "")
	if len(windowAlerts2) != 1 {
		t.Fatalf("expected 1 after-completion alert, got %d", len(windowAlerts2))
	}
	if windowAlerts2[0].Title != "Date After Batch Completion" {
		t.Errorf("expected 'Date After Batch Completion', got %q", windowAlerts2[0].Title)
	}
}

// TestWithinToleranceNeverFires verifies testable property #7: any date
// within 24h of either bound (inclusive) never produces a window-violation
// alert.
func TestWithinToleranceNeverFires(t *testing.T) {
	ids := model.NewIDGenerator()
	pages := []PageInput{
		{PageNumber: 1, Values: append(commencementField("24/04/25 11:07"), completionField("26/04/25 18:30")...)},
	}
	bounds, _ := Reconcile(ids, pages)

	withinValues := []model.ExtractedValue{
		{RawValue: "23/04/25 11:07", ValueType: model.ValueDatetime, Source: model.SourceLocation{FieldLabel: "Inspection Date"}}, // exactly 24h before commencement
		{RawValue: "27/04/25 18:30", ValueType: model.ValueDatetime, Source: model.SourceLocation{FieldLabel: "Inspection Date"}}, // exactly 24h after completion
	}
	alerts := ValidateWindow(ids, bounds, 3, withinValues, "")
	if len(alerts) != 0 {
		t.Fatalf("expected zero alerts for dates within the 24h tolerance, got %d: %+v", len(alerts), alerts)
	}
}

func TestMissingBothBoundsEmitsTwoCriticalAlerts(t *testing.T) {
	ids := model.NewIDGenerator()
	bounds, alerts := Reconcile(ids, []PageInput{{PageNumber: 1}})
	if bounds.Commencement != nil || bounds.Completion != nil {
		t.Fatalf("expected unresolved bounds")
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 missing-value alerts, got %d", len(alerts))
	}
	for _, a := range alerts {
		if a.Severity != model.SeverityCritical || a.Category != model.CategoryMissingValue {
			t.Errorf("expected critical missing_value alert, got %s/%s", a.Severity, a.Category)
		}
	}
}

func TestReconciliationDisagreementAlert(t *testing.T) {
	ids := model.NewIDGenerator()
	pages := []PageInput{
		{
			PageNumber: 1,
			Values:     append(commencementField("24/04/25 11:07"), completionField("26/04/25 18:30")...),
			RawText:    "Batch Commencement Date/Time: 25/04/25 09:00\nBatch Completion Date/Time: 26/04/25 18:30",
		},
	}
	_, alerts := Reconcile(ids, pages)

	var sawDisagreement bool
	for _, a := range alerts {
		if a.RuleID == model.RuleIDBatchDateReconciliation {
			sawDisagreement = true
		}
	}
	if !sawDisagreement {
		t.Errorf("expected a reconciliation-disagreement alert when structured and text-derived commencement dates differ")
	}
}

func TestValidateWindowNoopWithoutBothBounds(t *testing.T) {
	ids := model.NewIDGenerator()
	bounds := Bounds{Commencement: timePtr(time.Now())}
	alerts := ValidateWindow(ids, bounds, 1, nil, "")
	if alerts != nil {
		t.Errorf("expected no window validation without both bounds resolved")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
