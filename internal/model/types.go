/**
 * Core data model for the BMR validation engine.
 *
 * Shared types carried through every component: bounding boxes, source
 * locations, extracted values, alert categories/severities, and the
 * validation alert itself. Formula and SOP rule shapes live alongside the
 * components that own them (internal/formula, internal/sop).
 */

package model

// BoundingBox is the (x, y, width, height) of a region on a page image, in
// pixels. All-zero means "unknown".
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// SourceLocation pins a value or alert to where it came from on the page.
type SourceLocation struct {
	PageNumber         int
	SectionType        string
	FieldLabel         string
	BoundingBox        BoundingBox
	SurroundingContext string
}

// ValueType classifies the parsed shape of an extracted value.
type ValueType string

const (
	ValueNumeric  ValueType = "numeric"
	ValueDate     ValueType = "date"
	ValueTime     ValueType = "time"
	ValueDatetime ValueType = "datetime"
	ValueText     ValueType = "text"
	ValueBoolean  ValueType = "boolean"
)

// ExtractedValue is the single container every upstream shape (form field,
// table cell, handwritten region, text-pattern hit) normalizes into.
type ExtractedValue struct {
	ID            string
	RawValue      string
	NumericValue  *float64
	Unit          string // empty string means absent
	ValueType     ValueType
	Source        SourceLocation
	Confidence    float64
	IsHandwritten bool
}

// HasNumeric reports whether NumericValue is present, matching the
// invariant that ValueNumeric implies a numeric value is set.
func (v *ExtractedValue) HasNumeric() bool {
	return v.NumericValue != nil
}

// AlertCategory is one of the exhaustive alert categories (§7).
type AlertCategory string

const (
	CategoryCalculationError AlertCategory = "calculation_error"
	CategoryMissingValue     AlertCategory = "missing_value"
	CategoryRangeViolation   AlertCategory = "range_violation"
	CategorySequenceError    AlertCategory = "sequence_error"
	CategoryUnitMismatch     AlertCategory = "unit_mismatch"
	CategoryTrendAnomaly     AlertCategory = "trend_anomaly"
	CategoryConsistencyError AlertCategory = "consistency_error"
	CategoryFormatError      AlertCategory = "format_error"
	CategorySOPViolation     AlertCategory = "sop_violation"
	CategoryDataQuality      AlertCategory = "data_quality"
)

// AllCategories enumerates every alert category, in a fixed order, so
// callers can initialize zero-defaulted count maps.
var AllCategories = []AlertCategory{
	CategoryCalculationError,
	CategoryMissingValue,
	CategoryRangeViolation,
	CategorySequenceError,
	CategoryUnitMismatch,
	CategoryTrendAnomaly,
	CategoryConsistencyError,
	CategoryFormatError,
	CategorySOPViolation,
	CategoryDataQuality,
}

// Severity is the alert severity scale, most to least urgent.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// AllSeverities enumerates every severity, in a fixed order.
var AllSeverities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// ValidationAlert is a single finding emitted by the engine. Resolution
// fields (ResolvedAt, ResolvedBy, Resolution) are never set by the engine —
// they exist for a host's review workflow to fill in later.
type ValidationAlert struct {
	ID              string
	Category        AlertCategory
	Severity        Severity
	Title           string
	Message         string
	Details         string
	Source          SourceLocation
	RelatedValues   []string // ExtractedValue/DetectedFormula ids
	SuggestedAction string
	RuleID          string
	FormulaID       string

	ResolvedAt   string
	ResolvedBy   string
	Resolution   string
}

// Stable rule ids referenced outside the engine (§6).
const (
	RuleIDPageCompletenessMissing = "page_completeness_missing"
	RuleIDBatchDateWindow         = "batch_date_window_violation"
	RuleIDBatchDateMissing        = "batch_date_extraction_missing"
	RuleIDBatchDateConfidence     = "batch_date_confidence"
	RuleIDBatchDateReconciliation = "batch_date_reconciliation"
)
