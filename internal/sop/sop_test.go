package sop

import (
	"testing"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

func phValue(raw string, v float64) model.ExtractedValue {
	n := v
	return model.ExtractedValue{
		ID:           "v1",
		RawValue:     raw,
		NumericValue: &n,
		ValueType:    model.ValueNumeric,
		Source:       model.SourceLocation{FieldLabel: "pH", SectionType: "filling_log"},
	}
}

// phRangeAlerts counts the alerts raised by the default ph_range rule; the
// other default rules (e.g. the presence rules on filling_log) are ignored.
func phRangeAlerts(alerts []model.ValidationAlert) int {
	n := 0
	for _, a := range alerts {
		if a.RuleID == "ph_range" {
			n++
		}
	}
	return n
}

// TestPHRangeBoundaryNoFire verifies testable property #4: {6.0, 7.0, 8.0}
// never fire the default ph_range rule.
func TestPHRangeBoundaryNoFire(t *testing.T) {
	e := New(model.NewIDGenerator())
	for _, v := range []float64{6.0, 7.0, 8.0} {
		values := []model.ExtractedValue{phValue("", v)}
		alerts := e.Evaluate("filling_log", values, 1)
		if n := phRangeAlerts(alerts); n != 0 {
			t.Errorf("pH=%v expected zero ph_range alerts, got %d", v, n)
		}
	}
}

// TestPHRangeOutsideBoundsFires verifies property #4's other half: {5.9,
// 8.1} each fire exactly one ph_range alert.
func TestPHRangeOutsideBoundsFires(t *testing.T) {
	e := New(model.NewIDGenerator())
	for _, v := range []float64{5.9, 8.1} {
		values := []model.ExtractedValue{phValue("", v)}
		alerts := e.Evaluate("filling_log", values, 1)
		if n := phRangeAlerts(alerts); n != 1 {
			t.Errorf("pH=%v expected exactly 1 ph_range alert, got %d", v, n)
		}
	}
}

func TestGreaterThanFiresBelowThreshold(t *testing.T) {
	e := &Engine{rules: make(map[string]*SOPRule), ids: model.NewIDGenerator()}
	e.AddRule(SOPRule{
		ID:       "r1",
		Category: model.CategoryRangeViolation,
		Severity: model.SeverityHigh,
		Enabled:  true,
		Conditions: []Condition{
			{FieldPattern: `temp`, SectionTypes: sections("cip_sip_record"), Operator: OpGreaterThan, Min: 65},
		},
	})

	n := 60.0
	values := []model.ExtractedValue{{NumericValue: &n, Source: model.SourceLocation{FieldLabel: "Temp"}}}
	alerts := e.Evaluate("cip_sip_record", values, 1)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert for value below greater_than threshold, got %d", len(alerts))
	}

	n2 := 70.0
	values2 := []model.ExtractedValue{{NumericValue: &n2, Source: model.SourceLocation{FieldLabel: "Temp"}}}
	alerts2 := e.Evaluate("cip_sip_record", values2, 1)
	if len(alerts2) != 0 {
		t.Fatalf("expected 0 alerts for value above greater_than threshold, got %d", len(alerts2))
	}
}

func TestExistsFiresOnceWhenMissing(t *testing.T) {
	e := &Engine{rules: make(map[string]*SOPRule), ids: model.NewIDGenerator()}
	e.AddRule(SOPRule{
		ID:       "r1",
		Category: model.CategorySOPViolation,
		Severity: model.SeverityMedium,
		Enabled:  true,
		Conditions: []Condition{
			{FieldPattern: `equipment`, SectionTypes: sections("equipment_log"), Operator: OpExists},
		},
		ErrorMessage: "Equipment ID Missing",
	})

	alerts := e.Evaluate("equipment_log", nil, 3)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 missing-value alert, got %d", len(alerts))
	}
	if alerts[0].Category != model.CategoryMissingValue {
		t.Errorf("expected missing_value category, got %s", alerts[0].Category)
	}

	present := []model.ExtractedValue{{RawValue: "EQ-12", Source: model.SourceLocation{FieldLabel: "Equipment ID"}}}
	alerts2 := e.Evaluate("equipment_log", present, 3)
	if len(alerts2) != 0 {
		t.Fatalf("expected 0 alerts when the field is present, got %d", len(alerts2))
	}
}

func TestExistsNeverFiresPerValue(t *testing.T) {
	e := &Engine{rules: make(map[string]*SOPRule), ids: model.NewIDGenerator()}
	e.AddRule(SOPRule{
		ID:       "r1",
		Enabled:  true,
		Severity: model.SeverityLow,
		Conditions: []Condition{
			{FieldPattern: `sig`, SectionTypes: sections("materials_log"), Operator: OpExists},
		},
	})
	values := []model.ExtractedValue{
		{RawValue: "J.Doe", Source: model.SourceLocation{FieldLabel: "Signature"}},
		{RawValue: "A.Roe", Source: model.SourceLocation{FieldLabel: "Signature"}},
	}
	alerts := e.Evaluate("materials_log", values, 1)
	if len(alerts) != 0 {
		t.Fatalf("exists must never fire on per-value iteration, got %d alerts", len(alerts))
	}
}

func TestNotExistsAlwaysFiresPerMatch(t *testing.T) {
	e := &Engine{rules: make(map[string]*SOPRule), ids: model.NewIDGenerator()}
	e.AddRule(SOPRule{
		ID:       "r1",
		Enabled:  true,
		Severity: model.SeverityLow,
		Conditions: []Condition{
			{FieldPattern: `deprecated`, SectionTypes: sections("materials_log"), Operator: OpNotExists},
		},
	})
	values := []model.ExtractedValue{
		{RawValue: "x", Source: model.SourceLocation{FieldLabel: "Deprecated Field"}},
	}
	alerts := e.Evaluate("materials_log", values, 1)
	if len(alerts) != 1 {
		t.Fatalf("expected not_exists to fire on the one matching value, got %d", len(alerts))
	}
}

func TestAddRuleRejectsBadRegex(t *testing.T) {
	e := &Engine{rules: make(map[string]*SOPRule), ids: model.NewIDGenerator()}
	ok := e.AddRule(SOPRule{
		ID: "bad",
		Conditions: []Condition{
			{FieldPattern: `(unterminated`, Operator: OpExists},
		},
	})
	if ok {
		t.Fatalf("expected AddRule to reject an unparseable regex")
	}
	if len(e.ListRules()) != 0 {
		t.Fatalf("rejected rule must not be stored")
	}
}

func TestDefaultRulesetHasTenRules(t *testing.T) {
	e := New(model.NewIDGenerator())
	rules := e.ListRules()
	if len(rules) != 10 {
		t.Fatalf("expected 10 bundled default rules, got %d", len(rules))
	}
}

func TestRemoveRule(t *testing.T) {
	e := New(model.NewIDGenerator())
	if !e.RemoveRule("ph_range") {
		t.Fatalf("expected RemoveRule to succeed for an existing rule")
	}
	if e.RemoveRule("ph_range") {
		t.Fatalf("expected a second RemoveRule on the same id to fail")
	}
	if len(e.ListRules()) != 9 {
		t.Fatalf("expected 9 rules remaining, got %d", len(e.ListRules()))
	}
}

func TestContainsOperator(t *testing.T) {
	e := &Engine{rules: make(map[string]*SOPRule), ids: model.NewIDGenerator()}
	e.AddRule(SOPRule{
		ID:       "r1",
		Enabled:  true,
		Severity: model.SeverityLow,
		Conditions: []Condition{
			{FieldPattern: `disposition`, SectionTypes: sections("reconciliation_page"), Operator: OpContains, StringValue: "approved"},
		},
	})
	values := []model.ExtractedValue{{RawValue: "Rejected", Source: model.SourceLocation{FieldLabel: "Disposition"}}}
	alerts := e.Evaluate("reconciliation_page", values, 1)
	if len(alerts) != 1 {
		t.Fatalf("expected contains to fire when substring absent, got %d", len(alerts))
	}

	values2 := []model.ExtractedValue{{RawValue: "Approved", Source: model.SourceLocation{FieldLabel: "Disposition"}}}
	alerts2 := e.Evaluate("reconciliation_page", values2, 1)
	if len(alerts2) != 0 {
		t.Fatalf("expected contains (case-insensitive) not to fire when substring present, got %d", len(alerts2))
	}
}
