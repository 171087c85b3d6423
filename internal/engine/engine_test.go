package engine

import (
	"testing"

	"github.com/pharmalabs/bmrvalidate/internal/extractor"
	"github.com/pharmalabs/bmrvalidate/internal/model"
)

// TestYieldDiscrepancyEndToEnd mirrors scenario S1: one page classified
// filling_log with Input=1000ml, Output=900ml, Yield=85%.
func TestYieldDiscrepancyEndToEnd(t *testing.T) {
	e := New()
	page := PageInput{
		PageNumber:     1,
		Classification: "filling_log",
		FormFields: []extractor.FormField{
			{FieldName: "Input", FieldValue: "1000 ml"},
			{FieldName: "Output", FieldValue: "900 ml"},
			{FieldName: "Yield", FieldValue: "85 %"},
		},
	}
	result := e.ValidatePage(page)

	if len(result.DetectedFormulas) != 1 {
		t.Fatalf("expected 1 detected formula, got %d", len(result.DetectedFormulas))
	}
	f := result.DetectedFormulas[0]
	if *f.ExpectedResult != 90.00 || *f.Discrepancy != 5.00 {
		t.Fatalf("expected expectedResult=90.00 discrepancy=5.00, got %.2f/%.2f", *f.ExpectedResult, *f.Discrepancy)
	}

	var calcErrors int
	for _, a := range result.Alerts {
		if a.Category == model.CategoryCalculationError {
			calcErrors++
			if a.Severity != model.SeverityHigh {
				t.Errorf("expected high severity calculation_error alert, got %s", a.Severity)
			}
		}
	}
	if calcErrors != 1 {
		t.Fatalf("expected exactly 1 calculation_error alert, got %d", calcErrors)
	}

	summary := e.ValidateDocument("doc-1", []PageValidationResult{result})
	if summary.FormulasChecked != 1 {
		t.Errorf("expected formulasChecked=1, got %d", summary.FormulasChecked)
	}
	if summary.FormulaDiscrepancies != 1 {
		t.Errorf("expected formulaDiscrepancies=1, got %d", summary.FormulaDiscrepancies)
	}
	if summary.TotalPages != 1 || summary.PagesValidated != 1 {
		t.Errorf("expected totalPages=pagesValidated=1, got %d/%d", summary.TotalPages, summary.PagesValidated)
	}
}

// TestCountsConsistency verifies testable property #6: the severity and
// category count maps both sum to totalAlerts.
func TestCountsConsistency(t *testing.T) {
	e := New()
	pages := []PageInput{
		{
			PageNumber:     1,
			Classification: "filling_log",
			FormFields: []extractor.FormField{
				{FieldName: "Input", FieldValue: "1000 ml"},
				{FieldName: "Output", FieldValue: "900 ml"},
				{FieldName: "Yield", FieldValue: "85 %"},
			},
		},
		{
			PageNumber:     2,
			Classification: "cip_sip_record",
			FormFields: []extractor.FormField{
				{FieldName: "CIP Temp", FieldValue: "60 °C"},
			},
		},
	}
	results := e.ValidatePages(pages)
	summary := e.ValidateDocument("doc-2", results)

	sevSum := 0
	for _, v := range summary.AlertsBySeverity {
		sevSum += v
	}
	catSum := 0
	for _, v := range summary.AlertsByCategory {
		catSum += v
	}
	if sevSum != summary.TotalAlerts || catSum != summary.TotalAlerts {
		t.Errorf("expected severity sum (%d) and category sum (%d) to equal totalAlerts (%d)", sevSum, catSum, summary.TotalAlerts)
	}

	for _, s := range model.AllSeverities {
		if _, ok := summary.AlertsBySeverity[s]; !ok {
			t.Errorf("expected severity %s to have a zero-initialized entry", s)
		}
	}
	for _, c := range model.AllCategories {
		if _, ok := summary.AlertsByCategory[c]; !ok {
			t.Errorf("expected category %s to have a zero-initialized entry", c)
		}
	}
}

// TestDeterminism verifies testable property #1: two invocations on
// identical input produce alerts with identical category, severity, and
// relative order.
func TestDeterminism(t *testing.T) {
	page := PageInput{
		PageNumber:     1,
		Classification: "filling_log",
		FormFields: []extractor.FormField{
			{FieldName: "Input", FieldValue: "1000 ml"},
			{FieldName: "Output", FieldValue: "900 ml"},
			{FieldName: "Yield", FieldValue: "85 %"},
		},
		ExtractedText: "Batch No: C251RH4004\nLot No: L-1",
	}

	run := func() []model.ValidationAlert {
		e := New()
		result := e.ValidatePage(page)
		summary := e.ValidateDocument("doc", []PageValidationResult{result})
		all := append([]model.ValidationAlert{}, result.Alerts...)
		all = append(all, summary.CrossPageIssues...)
		return all
	}

	first := run()
	second := run()

	if len(first) != len(second) {
		t.Fatalf("expected identical alert counts across runs, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Category != second[i].Category || first[i].Severity != second[i].Severity || first[i].Title != second[i].Title {
			t.Errorf("alert %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestValidatePagesPreservesOrder(t *testing.T) {
	e := New()
	var pages []PageInput
	for i := 1; i <= 10; i++ {
		pages = append(pages, PageInput{PageNumber: i})
	}
	results := e.ValidatePages(pages)
	for i, r := range results {
		if r.PageNumber != i+1 {
			t.Fatalf("expected result %d to be page %d, got page %d", i, i+1, r.PageNumber)
		}
	}
}
