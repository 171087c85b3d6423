/**
 * Formula Detector (§4.3)
 *
 * Attempts five fixed formulas per page. Operand selection is by
 * case-insensitive regex against fieldLabel; the first matching numeric
 * value wins. Missing required operands means the formula is not emitted.
 */

package formula

import (
	"fmt"
	"math"
	"regexp"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

// FormulaType is one of the five enumerated kinds.
type FormulaType string

const (
	TypeYieldPercentage      FormulaType = "yield_percentage"
	TypeMaterialReconcile    FormulaType = "material_reconciliation"
	TypeTemperatureAverage   FormulaType = "temperature_average"
	TypeHoldTime             FormulaType = "hold_time"
	TypePressureDifferential FormulaType = "pressure_differential"
)

// OperandRole tags an operand's position within a formula's expression.
type OperandRole string

const (
	RoleNumerator  OperandRole = "numerator"
	RoleDenominator OperandRole = "denominator"
	RoleBase       OperandRole = "base"
	RoleSubtrahend OperandRole = "subtrahend"
	RoleOperand    OperandRole = "operand"
)

// Operand is one named input consumed by a detected formula.
type Operand struct {
	Role  OperandRole
	Label string
	Value float64
}

// DetectedFormula is one successfully matched formula instance.
type DetectedFormula struct {
	ID                string
	FormulaType       FormulaType
	Expression        string
	Operands          []Operand
	ExpectedResult    *float64
	ActualResult      *float64
	Discrepancy       *float64
	TolerancePercent  float64
	IsWithinTolerance bool
	Source            model.SourceLocation
}

var (
	reOutput  = regexp.MustCompile(`(?i)output|product|final|filled`)
	reInput   = regexp.MustCompile(`(?i)input|initial|starting|bulk`)
	reYield   = regexp.MustCompile(`(?i)yield|recovery`)

	reReceived  = regexp.MustCompile(`(?i)input|received|starting|issued`)
	reUsed      = regexp.MustCompile(`(?i)used|consumed|filled`)
	reWaste     = regexp.MustCompile(`(?i)waste|reject|discard`)
	reRemaining = regexp.MustCompile(`(?i)remaining|balance|returned`)

	reTemp    = regexp.MustCompile(`(?i)temp`)
	reAvgWord = regexp.MustCompile(`(?i)avg|average|mean`)

	reStartTime = regexp.MustCompile(`(?i)start.*time|time.*start`)
	reEndTime   = regexp.MustCompile(`(?i)end.*time|time.*end`)
	reHoldDur   = regexp.MustCompile(`(?i)hold.*(duration|time)`)

	rePressure = regexp.MustCompile(`(?i)pressure`)
	reInlet    = regexp.MustCompile(`(?i)inlet|input|upstream`)
	reOutlet   = regexp.MustCompile(`(?i)outlet|output|downstream`)
	reDiff     = regexp.MustCompile(`(?i)diff|delta|drop`)
)

// Detector runs the fixed formula set against one page's extracted values.
type Detector struct {
	ids *model.IDGenerator
}

// New creates a Detector that mints formula ids from the given generator.
func New(ids *model.IDGenerator) *Detector {
	return &Detector{ids: ids}
}

// Detect attempts all five formulas against values, returning only those
// that matched (found all required operands).
func (d *Detector) Detect(values []model.ExtractedValue) []DetectedFormula {
	var out []DetectedFormula
	if f, ok := d.yieldPercentage(values); ok {
		out = append(out, f)
	}
	if f, ok := d.materialReconciliation(values); ok {
		out = append(out, f)
	}
	if f, ok := d.temperatureAverage(values); ok {
		out = append(out, f)
	}
	if f, ok := d.holdTime(values); ok {
		out = append(out, f)
	}
	if f, ok := d.pressureDifferential(values); ok {
		out = append(out, f)
	}
	return out
}

func firstMatch(values []model.ExtractedValue, re *regexp.Regexp, exclude *regexp.Regexp) (model.ExtractedValue, bool) {
	for _, v := range values {
		if !v.HasNumeric() {
			continue
		}
		if exclude != nil && exclude.MatchString(v.Source.FieldLabel) {
			continue
		}
		if re.MatchString(v.Source.FieldLabel) {
			return v, true
		}
	}
	return model.ExtractedValue{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (d *Detector) yieldPercentage(values []model.ExtractedValue) (DetectedFormula, bool) {
	output, ok := firstMatch(values, reOutput, nil)
	if !ok {
		return DetectedFormula{}, false
	}
	input, ok := firstMatch(values, reInput, nil)
	if !ok {
		return DetectedFormula{}, false
	}
	if input.NumericValue == nil || *input.NumericValue == 0 {
		return DetectedFormula{}, false
	}

	expected := round2((*output.NumericValue / *input.NumericValue) * 100)

	f := DetectedFormula{
		ID:          d.ids.Next("formula"),
		FormulaType: TypeYieldPercentage,
		Expression:  "(output/input)*100",
		Operands: []Operand{
			{Role: RoleNumerator, Label: output.Source.FieldLabel, Value: *output.NumericValue},
			{Role: RoleDenominator, Label: input.Source.FieldLabel, Value: *input.NumericValue},
		},
		ExpectedResult:   &expected,
		TolerancePercent: 0.5,
		Source:           output.Source,
	}

	if yield, ok := firstMatch(values, reYield, nil); ok {
		actual := round2(*yield.NumericValue)
		discrepancy := round2(math.Abs(expected - actual))
		f.ActualResult = &actual
		f.Discrepancy = &discrepancy
		f.IsWithinTolerance = discrepancy <= 0.5
	} else {
		f.IsWithinTolerance = true
	}
	return f, true
}

func (d *Detector) materialReconciliation(values []model.ExtractedValue) (DetectedFormula, bool) {
	received, ok := firstMatch(values, reReceived, nil)
	if !ok {
		return DetectedFormula{}, false
	}
	used, ok := firstMatch(values, reUsed, nil)
	if !ok {
		return DetectedFormula{}, false
	}
	waste, ok := firstMatch(values, reWaste, nil)
	if !ok {
		return DetectedFormula{}, false
	}
	remaining, ok := firstMatch(values, reRemaining, nil)
	if !ok {
		return DetectedFormula{}, false
	}

	expected := round2(*used.NumericValue + *waste.NumericValue + *remaining.NumericValue)
	actual := round2(*received.NumericValue)
	discrepancy := round2(math.Abs(expected - actual))
	tolerance := math.Abs(*received.NumericValue) * 0.001

	return DetectedFormula{
		ID:          d.ids.Next("formula"),
		FormulaType: TypeMaterialReconcile,
		Expression:  "used+waste+remaining",
		Operands: []Operand{
			{Role: RoleBase, Label: received.Source.FieldLabel, Value: *received.NumericValue},
			{Role: RoleOperand, Label: used.Source.FieldLabel, Value: *used.NumericValue},
			{Role: RoleOperand, Label: waste.Source.FieldLabel, Value: *waste.NumericValue},
			{Role: RoleOperand, Label: remaining.Source.FieldLabel, Value: *remaining.NumericValue},
		},
		ExpectedResult:    &expected,
		ActualResult:      &actual,
		Discrepancy:       &discrepancy,
		TolerancePercent:  0.1,
		IsWithinTolerance: discrepancy <= tolerance,
		Source:            received.Source,
	}, true
}

func (d *Detector) temperatureAverage(values []model.ExtractedValue) (DetectedFormula, bool) {
	var temps []model.ExtractedValue
	for _, v := range values {
		if !v.HasNumeric() {
			continue
		}
		if reTemp.MatchString(v.Source.FieldLabel) && !reAvgWord.MatchString(v.Source.FieldLabel) {
			temps = append(temps, v)
		}
	}
	if len(temps) < 2 {
		return DetectedFormula{}, false
	}

	var avgValue model.ExtractedValue
	found := false
	for _, v := range values {
		if v.HasNumeric() && reTemp.MatchString(v.Source.FieldLabel) && reAvgWord.MatchString(v.Source.FieldLabel) {
			avgValue = v
			found = true
			break
		}
	}
	if !found {
		return DetectedFormula{}, false
	}

	sum := 0.0
	operands := make([]Operand, 0, len(temps))
	for _, t := range temps {
		sum += *t.NumericValue
		operands = append(operands, Operand{Role: RoleOperand, Label: t.Source.FieldLabel, Value: *t.NumericValue})
	}
	expected := round2(sum / float64(len(temps)))
	actual := round2(*avgValue.NumericValue)
	discrepancy := round2(math.Abs(expected - actual))

	return DetectedFormula{
		ID:                d.ids.Next("formula"),
		FormulaType:       TypeTemperatureAverage,
		Expression:        "mean(temps)",
		Operands:          operands,
		ExpectedResult:    &expected,
		ActualResult:      &actual,
		Discrepancy:       &discrepancy,
		TolerancePercent:  0.5,
		IsWithinTolerance: discrepancy <= 0.5,
		Source:            temps[0].Source,
	}, true
}

func (d *Detector) holdTime(values []model.ExtractedValue) (DetectedFormula, bool) {
	start, ok := firstMatch(values, reStartTime, nil)
	if !ok {
		return DetectedFormula{}, false
	}
	end, ok := firstMatch(values, reEndTime, nil)
	if !ok {
		return DetectedFormula{}, false
	}
	dur, ok := firstMatch(values, reHoldDur, nil)
	if !ok {
		return DetectedFormula{}, false
	}

	// Informational only; never auto-alerts (§9 Design Notes, open question b).
	return DetectedFormula{
		ID:                d.ids.Next("formula"),
		FormulaType:       TypeHoldTime,
		Expression:        "end-start",
		Operands: []Operand{
			{Role: RoleSubtrahend, Label: start.Source.FieldLabel, Value: *start.NumericValue},
			{Role: RoleBase, Label: end.Source.FieldLabel, Value: *end.NumericValue},
			{Role: RoleOperand, Label: dur.Source.FieldLabel, Value: *dur.NumericValue},
		},
		TolerancePercent:  0.5,
		IsWithinTolerance: true,
		Source:            dur.Source,
	}, true
}

func (d *Detector) pressureDifferential(values []model.ExtractedValue) (DetectedFormula, bool) {
	var inlet, outlet, diff model.ExtractedValue
	foundInlet, foundOutlet, foundDiff := false, false, false
	for _, v := range values {
		if !v.HasNumeric() || !rePressure.MatchString(v.Source.FieldLabel) {
			continue
		}
		label := v.Source.FieldLabel
		if !foundInlet && reInlet.MatchString(label) {
			inlet, foundInlet = v, true
			continue
		}
		if !foundOutlet && reOutlet.MatchString(label) {
			outlet, foundOutlet = v, true
			continue
		}
		if !foundDiff && reDiff.MatchString(label) {
			diff, foundDiff = v, true
		}
	}
	if !foundInlet || !foundOutlet {
		return DetectedFormula{}, false
	}

	expected := round2(math.Abs(*inlet.NumericValue - *outlet.NumericValue))
	f := DetectedFormula{
		ID:          d.ids.Next("formula"),
		FormulaType: TypePressureDifferential,
		Expression:  "|inlet-outlet|",
		Operands: []Operand{
			{Role: RoleOperand, Label: inlet.Source.FieldLabel, Value: *inlet.NumericValue},
			{Role: RoleOperand, Label: outlet.Source.FieldLabel, Value: *outlet.NumericValue},
		},
		ExpectedResult:   &expected,
		TolerancePercent: 0.5,
		Source:           inlet.Source,
	}

	if foundDiff {
		actual := round2(*diff.NumericValue)
		discrepancy := round2(math.Abs(expected - actual))
		f.ActualResult = &actual
		f.Discrepancy = &discrepancy
		f.IsWithinTolerance = discrepancy <= 0.5
	} else {
		f.IsWithinTolerance = true
	}
	return f, true
}

// AlertFor builds the calculation_error alert for a formula outside
// tolerance, or returns ok=false if the formula is within tolerance or has
// no actual result to compare against.
func AlertFor(ids *model.IDGenerator, f DetectedFormula) (model.ValidationAlert, bool) {
	if f.IsWithinTolerance || f.Discrepancy == nil {
		return model.ValidationAlert{}, false
	}

	severity := model.SeverityMedium
	if math.Abs(*f.Discrepancy) >= 5 {
		severity = model.SeverityHigh
	}

	details := fmt.Sprintf("expected=%.2f actual=%.2f discrepancy=%.2f", *f.ExpectedResult, *f.ActualResult, *f.Discrepancy)

	return model.ValidationAlert{
		ID:              ids.Next("alert"),
		Category:        model.CategoryCalculationError,
		Severity:        severity,
		Title:           fmt.Sprintf("%s Discrepancy", formulaTitle(f.FormulaType)),
		Message:         fmt.Sprintf("%s differs from its calculated expectation by %.2f", formulaTitle(f.FormulaType), *f.Discrepancy),
		Details:         details,
		Source:          f.Source,
		FormulaID:       f.ID,
		SuggestedAction: "Review the source values for transcription or calculation error",
	}, true
}

func formulaTitle(t FormulaType) string {
	switch t {
	case TypeYieldPercentage:
		return "Yield"
	case TypeMaterialReconcile:
		return "Material Reconciliation"
	case TypeTemperatureAverage:
		return "Temperature Average"
	case TypePressureDifferential:
		return "Pressure Differential"
	default:
		return string(t)
	}
}
