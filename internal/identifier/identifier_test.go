package identifier

import (
	"testing"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

func batchField(value string) []model.ExtractedValue {
	return []model.ExtractedValue{
		{RawValue: value, Source: model.SourceLocation{FieldLabel: "Batch No."}},
	}
}

// TestOCRVariantBatchConsensus mirrors scenario S2: five pages with OCR
// variants of the same batch number all canonicalize identically, so
// aggregation must emit zero alerts.
func TestOCRVariantBatchConsensus(t *testing.T) {
	ids := model.NewIDGenerator()
	raw := []string{"C251RH4004", "C25IRH4004", "C251RH4004", "(25IRH 4004", "C251RH4004"}

	var records []PageRecord
	for i, v := range raw {
		rec, alert := ExtractPage(ids, KindBatch, i+1, batchField(v), "")
		if alert != nil {
			t.Fatalf("page %d: unexpected reconciliation alert", i+1)
		}
		if rec == nil || rec.Empty {
			t.Fatalf("page %d: expected a non-empty record", i+1)
		}
		records = append(records, *rec)
	}

	alerts := Aggregate(ids, KindBatch, records)
	if len(alerts) != 0 {
		t.Fatalf("expected zero consistency alerts for full OCR-variant consensus, got %d: %+v", len(alerts), alerts)
	}
}

// TestBatchOutlier mirrors scenario S3: four pages agree, one disagrees.
func TestBatchOutlier(t *testing.T) {
	ids := model.NewIDGenerator()
	values := []string{"C251RH4004", "C251RH4004", "C251RH4004", "C251RH4004", "C251RH4005"}

	var records []PageRecord
	for i, v := range values {
		rec, _ := ExtractPage(ids, KindBatch, i+1, batchField(v), "")
		records = append(records, *rec)
	}

	alerts := Aggregate(ids, KindBatch, records)
	if len(alerts) != 2 {
		t.Fatalf("expected 1 consistency alert + 1 outlier alert, got %d", len(alerts))
	}

	var sawConsistency, sawOutlier bool
	for _, a := range alerts {
		if a.Category == model.CategoryConsistencyError && a.Severity == model.SeverityCritical {
			sawConsistency = true
		}
		if a.Category == model.CategoryConsistencyError && a.Severity == model.SeverityHigh {
			sawOutlier = true
			if a.Source.PageNumber != 5 {
				t.Errorf("expected outlier to name page 5, got page %d", a.Source.PageNumber)
			}
		}
	}
	if !sawConsistency {
		t.Errorf("expected a critical document-level consistency alert")
	}
	if !sawOutlier {
		t.Errorf("expected a high-severity outlier alert")
	}
}

// TestLotTie mirrors scenario S6: a 3-3 split produces exactly one
// data_quality/high alert and nothing else.
func TestLotTie(t *testing.T) {
	ids := model.NewIDGenerator()
	values := []string{"L-1", "L-1", "L-1", "L-2", "L-2", "L-2"}

	lotField := func(v string) []model.ExtractedValue {
		return []model.ExtractedValue{{RawValue: v, Source: model.SourceLocation{FieldLabel: "Lot No."}}}
	}

	var records []PageRecord
	for i, v := range values {
		rec, alert := ExtractPage(ids, KindLot, i+1, lotField(v), "")
		if alert != nil {
			t.Fatalf("unexpected per-page alert")
		}
		records = append(records, *rec)
	}

	alerts := Aggregate(ids, KindLot, records)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 tie alert, got %d", len(alerts))
	}
	if alerts[0].Category != model.CategoryDataQuality || alerts[0].Severity != model.SeverityHigh {
		t.Errorf("expected data_quality/high tie alert, got %s/%s", alerts[0].Category, alerts[0].Severity)
	}
}

func TestFieldLabelExcludesNotesAndVerified(t *testing.T) {
	values := []model.ExtractedValue{
		{RawValue: "see page 3", Source: model.SourceLocation{FieldLabel: "Batch Notes"}},
		{RawValue: "yes", Source: model.SourceLocation{FieldLabel: "Batch No Verified"}},
	}
	_, seen := pathA(KindBatch, values)
	if seen {
		t.Errorf("expected 'Batch Notes' and 'Batch No Verified' to be excluded from the field recognizer")
	}
}

func TestFieldLabelAcceptsCombinedField(t *testing.T) {
	values := []model.ExtractedValue{
		{RawValue: "C251RH4004", Source: model.SourceLocation{FieldLabel: "Batch No./Date"}},
	}
	v, seen := pathA(KindBatch, values)
	if !seen || v != "C251RH4004" {
		t.Errorf("expected combined field 'Batch No./Date' to match, got seen=%v v=%q", seen, v)
	}
}

func TestPathBStopsAtConflictingLabel(t *testing.T) {
	text := "Batch No: lot LT9921 date 24/04/25"
	v, seen := pathB(KindBatch, text)
	if seen && v != "" {
		t.Errorf("expected pathB to stop before a conflicting label token, got %q", v)
	}
}

func TestPathBAcceptsFirstValidToken(t *testing.T) {
	text := "Batch No: C251RH4004 verified by QA"
	v, seen := pathB(KindBatch, text)
	if !seen || v != "C251RH4004" {
		t.Errorf("expected pathB to extract C251RH4004, got seen=%v v=%q", seen, v)
	}
}

func TestMissingIdentifierRecordedEmpty(t *testing.T) {
	ids := model.NewIDGenerator()
	values := []model.ExtractedValue{
		{RawValue: "", Source: model.SourceLocation{FieldLabel: "Batch No."}},
	}
	rec, alert := ExtractPage(ids, KindBatch, 1, values, "")
	if rec == nil || !rec.Empty {
		t.Fatalf("expected an empty record when the label is found but blank")
	}
	if alert != nil {
		t.Errorf("expected no per-page conflict alert for a blank field")
	}
}

func TestNoLabelAtAllProducesNoRecord(t *testing.T) {
	ids := model.NewIDGenerator()
	rec, alert := ExtractPage(ids, KindBatch, 1, nil, "nothing relevant here")
	if rec != nil {
		t.Errorf("expected no record when neither path observes the label, got %+v", rec)
	}
	if alert != nil {
		t.Errorf("expected no alert")
	}
}

func TestConflictBetweenPathsLowersConfidence(t *testing.T) {
	ids := model.NewIDGenerator()
	values := batchField("C251RH4004")
	rec, alert := ExtractPage(ids, KindBatch, 1, values, "Batch No: C259ZZ9999 recorded")
	if rec == nil {
		t.Fatalf("expected a record")
	}
	if rec.Confidence != ConfidenceLow {
		t.Errorf("expected low confidence on path conflict, got %s", rec.Confidence)
	}
	if alert == nil {
		t.Errorf("expected a per-page reconciliation alert on path conflict")
	}
}
