/**
 * SOP Rule Engine (§4.4)
 *
 * A condition fires (emits an alert) when the matched value violates the
 * stated intent. Operator is modeled as a closed, tagged variant rather
 * than a stringly-typed discriminator (§9 Design Notes).
 */

package sop

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pharmalabs/bmrvalidate/internal/model"
)

// OperatorKind is the closed set of condition operators.
type OperatorKind string

const (
	OpGreaterThan OperatorKind = "greater_than"
	OpLessThan    OperatorKind = "less_than"
	OpBetween     OperatorKind = "between"
	OpEquals      OperatorKind = "equals"
	OpNotEquals   OperatorKind = "not_equals"
	OpContains    OperatorKind = "contains"
	OpExists      OperatorKind = "exists"
	OpNotExists   OperatorKind = "not_exists"
)

// Condition is one clause within an SOPRule. Operand payload depends on
// Operator: Min is used alone for greater_than/less_than; Min and Max
// together for between; StringValue for equals/not_equals/contains;
// exists/not_exists carry no operand payload.
type Condition struct {
	FieldPattern string
	re           *regexp.Regexp
	SectionTypes map[string]bool
	Operator     OperatorKind
	Min          float64
	Max          float64
	StringValue  string
	Unit         string
}

// SOPRule is one Standard Operating Procedure rule: an identity, a set of
// conditions, and the alert shape to emit when one fires.
type SOPRule struct {
	ID              string
	Category        model.AlertCategory
	Severity        model.Severity
	Enabled         bool
	Conditions      []Condition
	ErrorMessage    string
	SuggestedAction string
}

// Engine holds the mutable SOP rule list. Regex compilation happens once at
// ingress (addRule/updateRule), never per value (§9 Design Notes).
type Engine struct {
	mu    sync.RWMutex
	rules map[string]*SOPRule
	order []string
	ids   *model.IDGenerator
}

// New constructs an Engine pre-loaded with the bundled default ruleset.
func New(ids *model.IDGenerator) *Engine {
	e := &Engine{rules: make(map[string]*SOPRule), ids: ids}
	for _, r := range defaultRules() {
		e.AddRule(r)
	}
	return e
}

// AddRule compiles every condition's pattern and, on success, inserts the
// rule. Returns false (without mutating state) on a regex compile error.
func (e *Engine) AddRule(r SOPRule) bool {
	for i := range r.Conditions {
		re, err := regexp.Compile("(?i)" + r.Conditions[i].FieldPattern)
		if err != nil {
			return false
		}
		r.Conditions[i].re = re
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[r.ID]; !exists {
		e.order = append(e.order, r.ID)
	}
	stored := r
	e.rules[r.ID] = &stored
	return true
}

// UpdateRule replaces a rule by id, revalidating its conditions. Returns
// false if the id is unknown or a pattern fails to compile (leaving the
// existing rule untouched).
func (e *Engine) UpdateRule(id string, r SOPRule) bool {
	e.mu.RLock()
	_, exists := e.rules[id]
	e.mu.RUnlock()
	if !exists {
		return false
	}
	r.ID = id
	return e.AddRule(r)
}

// RemoveRule deletes a rule by id. Returns false if unknown.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[id]; !exists {
		return false
	}
	delete(e.rules, id)
	for i, rid := range e.order {
		if rid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return true
}

// ListRules returns every rule in insertion order.
func (e *Engine) ListRules() []SOPRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]SOPRule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.rules[id])
	}
	return out
}

// Evaluate runs every enabled rule's conditions against a single page's
// extracted values and returns the alerts produced.
func (e *Engine) Evaluate(sectionType string, values []model.ExtractedValue, pageNumber int) []model.ValidationAlert {
	var alerts []model.ValidationAlert
	for _, rule := range e.ListRules() {
		if !rule.Enabled {
			continue
		}
		for _, cond := range rule.Conditions {
			if !cond.SectionTypes[sectionType] {
				continue
			}
			alerts = append(alerts, e.evaluateCondition(rule, cond, values, sectionType, pageNumber)...)
		}
	}
	return alerts
}

func (e *Engine) evaluateCondition(rule SOPRule, cond Condition, values []model.ExtractedValue, sectionType string, pageNumber int) []model.ValidationAlert {
	var matched []model.ExtractedValue
	for _, v := range values {
		if cond.re.MatchString(v.Source.FieldLabel) {
			matched = append(matched, v)
		}
	}

	if cond.Operator == OpExists {
		if len(matched) == 0 {
			return []model.ValidationAlert{e.missingValueAlert(rule, cond, sectionType, pageNumber)}
		}
		return nil
	}

	var alerts []model.ValidationAlert
	for _, v := range matched {
		if cond.fires(v) {
			alerts = append(alerts, e.violationAlert(rule, cond, v))
		}
	}
	return alerts
}

// fires reports whether v violates cond's stated intent.
func (c Condition) fires(v model.ExtractedValue) bool {
	switch c.Operator {
	case OpGreaterThan:
		return v.HasNumeric() && *v.NumericValue < c.Min
	case OpLessThan:
		return v.HasNumeric() && *v.NumericValue > c.Min
	case OpBetween:
		return v.HasNumeric() && (*v.NumericValue < c.Min || *v.NumericValue > c.Max)
	case OpEquals:
		return v.RawValue != c.StringValue
	case OpNotEquals:
		return v.RawValue == c.StringValue
	case OpContains:
		return !strings.Contains(strings.ToLower(v.RawValue), strings.ToLower(c.StringValue))
	case OpNotExists:
		return true
	default:
		return false
	}
}

func (e *Engine) missingValueAlert(rule SOPRule, cond Condition, sectionType string, pageNumber int) model.ValidationAlert {
	return model.ValidationAlert{
		ID:              e.ids.Next("alert"),
		Category:        model.CategoryMissingValue,
		Severity:        rule.Severity,
		Title:           rule.ErrorMessage,
		Message:         fmt.Sprintf("No value matching %q found on this page", cond.FieldPattern),
		Source:          model.SourceLocation{PageNumber: pageNumber, SectionType: sectionType, FieldLabel: cond.FieldPattern},
		SuggestedAction: rule.SuggestedAction,
		RuleID:          rule.ID,
	}
}

func (e *Engine) violationAlert(rule SOPRule, cond Condition, v model.ExtractedValue) model.ValidationAlert {
	details := v.RawValue
	if v.HasNumeric() {
		details = strconv.FormatFloat(*v.NumericValue, 'f', -1, 64)
		if cond.Unit != "" {
			details += " " + cond.Unit
		}
	}
	return model.ValidationAlert{
		ID:              e.ids.Next("alert"),
		Category:        rule.Category,
		Severity:        rule.Severity,
		Title:           rule.ErrorMessage,
		Message:         fmt.Sprintf("%s: observed %s", rule.ErrorMessage, details),
		Details:         details,
		Source:          v.Source,
		RelatedValues:   []string{v.ID},
		SuggestedAction: rule.SuggestedAction,
		RuleID:          rule.ID,
	}
}

func sections(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// defaultRules returns the bundled ten-rule set loaded at construction.
func defaultRules() []SOPRule {
	return []SOPRule{
		{
			ID:       "storage_temperature_range",
			Category: model.CategoryRangeViolation,
			Severity: model.SeverityHigh,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `storage.*temp|temp.*storage`, SectionTypes: sections("materials_log", "equipment_log"), Operator: OpBetween, Min: 2, Max: 8, Unit: "°c"},
			},
			ErrorMessage:    "Storage Temperature Out of Range",
			SuggestedAction: "Verify cold-chain storage conditions and investigate excursion",
		},
		{
			ID:       "cip_temperature_minimum",
			Category: model.CategoryRangeViolation,
			Severity: model.SeverityHigh,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `cip.*temp|clean.*in.*place.*temp`, SectionTypes: sections("cip_sip_record"), Operator: OpGreaterThan, Min: 65, Unit: "°c"},
			},
			ErrorMessage:    "CIP Temperature Below Minimum",
			SuggestedAction: "Re-run clean-in-place cycle at required temperature",
		},
		{
			ID:       "sip_temperature_minimum",
			Category: model.CategoryRangeViolation,
			Severity: model.SeverityCritical,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `sip.*temp|steriliz.*temp`, SectionTypes: sections("cip_sip_record"), Operator: OpGreaterThan, Min: 121, Unit: "°c"},
			},
			ErrorMessage:    "SIP Temperature Below Minimum",
			SuggestedAction: "Re-run sterilize-in-place cycle at required temperature",
		},
		{
			ID:       "hold_time_maximum",
			Category: model.CategoryRangeViolation,
			Severity: model.SeverityMedium,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `hold.*time|hold.*duration`, SectionTypes: sections("filling_log", "filtration_step"), Operator: OpLessThan, Min: 24, Unit: "hr"},
			},
			ErrorMessage:    "Hold Time Exceeds Maximum",
			SuggestedAction: "Confirm product stability for the extended hold time or reprocess",
		},
		{
			ID:       "ph_range",
			Category: model.CategoryRangeViolation,
			Severity: model.SeverityHigh,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `\bph\b`, SectionTypes: sections("filling_log", "reconciliation_page", "inspection_sheet"), Operator: OpBetween, Min: 6.0, Max: 8.0},
			},
			ErrorMessage:    "pH Out of Range",
			SuggestedAction: "Review formulation and retest pH",
		},
		{
			ID:       "filter_differential_pressure_maximum",
			Category: model.CategoryRangeViolation,
			Severity: model.SeverityMedium,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `filter.*(diff|delta|drop).*pressure|pressure.*(diff|delta|drop).*filter`, SectionTypes: sections("filtration_step"), Operator: OpLessThan, Min: 15, Unit: "psi"},
			},
			ErrorMessage:    "Filter Differential Pressure Exceeds Maximum",
			SuggestedAction: "Inspect filter for blockage or replace",
		},
		{
			ID:       "yield_minimum",
			Category: model.CategoryRangeViolation,
			Severity: model.SeverityHigh,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `yield|recovery`, SectionTypes: sections("filling_log", "reconciliation_page"), Operator: OpGreaterThan, Min: 90, Unit: "%"},
			},
			ErrorMessage:    "Yield Below Minimum",
			SuggestedAction: "Investigate process losses for this batch",
		},
		{
			ID:       "equipment_id_presence",
			Category: model.CategorySOPViolation,
			Severity: model.SeverityMedium,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `equipment\s*(id|number|#)?`, SectionTypes: sections("equipment_log", "filling_log", "cip_sip_record", "filtration_step"), Operator: OpExists},
			},
			ErrorMessage:    "Equipment ID Missing",
			SuggestedAction: "Record the equipment identifier used for this step",
		},
		{
			ID:       "operator_signature_presence",
			Category: model.CategorySOPViolation,
			Severity: model.SeverityHigh,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `operator.*(signature|initial)`, SectionTypes: sections("materials_log", "filling_log", "cip_sip_record", "filtration_step", "equipment_log"), Operator: OpExists},
			},
			ErrorMessage:    "Operator Signature Missing",
			SuggestedAction: "Obtain operator sign-off for this step before release",
		},
		{
			ID:       "qa_approval_signature_presence",
			Category: model.CategorySOPViolation,
			Severity: model.SeverityCritical,
			Enabled:  true,
			Conditions: []Condition{
				{FieldPattern: `qa.*(approval|signature)|quality.*(approval|signature)`, SectionTypes: sections("reconciliation_page", "inspection_sheet"), Operator: OpExists},
			},
			ErrorMessage:    "QA Approval Signature Missing",
			SuggestedAction: "Route batch record to Quality Assurance for sign-off",
		},
	}
}
