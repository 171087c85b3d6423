/**
 * Orchestrator (§4.8)
 *
 * Wires the Value Extractor, Formula Detector, and SOP Rule Engine into
 * per-page validation, then composes the cross-page Identifier Reconciler,
 * Pagination Analyzer, and Batch Date Bounds passes into a document
 * summary. The engine is synchronous-by-contract: validatePage never
 * suspends on I/O, and concurrency across pages is an optimisation layered
 * on top of pure functions (§5).
 */

package engine

import (
	"sync"
	"time"

	"github.com/pharmalabs/bmrvalidate/internal/datebounds"
	"github.com/pharmalabs/bmrvalidate/internal/extractor"
	"github.com/pharmalabs/bmrvalidate/internal/formula"
	"github.com/pharmalabs/bmrvalidate/internal/identifier"
	"github.com/pharmalabs/bmrvalidate/internal/model"
	"github.com/pharmalabs/bmrvalidate/internal/pagination"
	"github.com/pharmalabs/bmrvalidate/internal/sop"
)

// PageInput is one page's worth of OCR/document-understanding output, per
// the external interface in §6.
type PageInput struct {
	PageNumber     int
	Classification string
	ExtractedText  string
	FormFields     []extractor.FormField
	Tables         []extractor.Table
	Handwritten    []extractor.HandwrittenRegion
}

// PageValidationResult is the per-page output of validatePage.
type PageValidationResult struct {
	PageNumber          int
	ExtractedValues     []model.ExtractedValue
	DetectedFormulas    []formula.DetectedFormula
	Alerts              []model.ValidationAlert
	ValidationTimestamp string
	ExtractedText       string
}

// DocumentValidationSummary is the output of validateDocument.
type DocumentValidationSummary struct {
	DocumentID           string
	TotalPages           int
	PagesValidated       int
	TotalAlerts          int
	AlertsBySeverity     map[model.Severity]int
	AlertsByCategory     map[model.AlertCategory]int
	FormulasChecked      int
	FormulaDiscrepancies int
	CrossPageIssues      []model.ValidationAlert
	ValidationTimestamp  string
	IsComplete           bool
}

// defaultPageConcurrency bounds ValidatePages when New is called without an
// explicit worker count.
const defaultPageConcurrency = 10

// Engine holds the id counters and mutable SOP rule list shared across
// every page of one document. Safe for concurrent use by ValidatePages; the
// SOP rule list itself must be quiesced (no concurrent add/update/remove)
// while validation is in flight (§5).
type Engine struct {
	ids         *model.IDGenerator
	extractor   *extractor.Extractor
	formulas    *formula.Detector
	rules       *sop.Engine
	concurrency int
}

// New constructs an Engine with its own id counters, the bundled default
// SOP ruleset, and the default page concurrency.
func New() *Engine {
	return NewWithConcurrency(defaultPageConcurrency)
}

// NewWithConcurrency constructs an Engine whose ValidatePages worker pool is
// bounded to the given number of goroutines (falling back to the default
// when concurrency is not positive).
func NewWithConcurrency(concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = defaultPageConcurrency
	}
	ids := model.NewIDGenerator()
	return &Engine{
		ids:         ids,
		extractor:   extractor.New(ids),
		formulas:    formula.New(ids),
		rules:       sop.New(ids),
		concurrency: concurrency,
	}
}

// Rules exposes the mutable SOP rule list (add/update/remove/list).
func (e *Engine) Rules() *sop.Engine {
	return e.rules
}

// ValidatePage runs §4.2 → §4.3 → §4.4 for a single page. Pure aside from
// the shared id counters and rule list.
func (e *Engine) ValidatePage(in PageInput) PageValidationResult {
	meta := extractor.PageMetadata{
		FormFields:  in.FormFields,
		Tables:      in.Tables,
		Handwritten: in.Handwritten,
	}
	values := e.extractor.Extract(in.PageNumber, in.Classification, meta, in.ExtractedText)

	detected := e.formulas.Detect(values)

	var alerts []model.ValidationAlert
	for _, f := range detected {
		if a, ok := formula.AlertFor(e.ids, f); ok {
			alerts = append(alerts, a)
		}
	}
	alerts = append(alerts, e.rules.Evaluate(in.Classification, values, in.PageNumber)...)

	return PageValidationResult{
		PageNumber:          in.PageNumber,
		ExtractedValues:     values,
		DetectedFormulas:    detected,
		Alerts:              alerts,
		ValidationTimestamp: time.Now().UTC().Format(time.RFC3339),
		ExtractedText:       in.ExtractedText,
	}
}

// ValidatePages runs ValidatePage across every input using a fixed-size pool
// of e.concurrency workers pulling page indices off a shared channel, then
// reassembles results in submission order so the output is identical to the
// single-threaded sequence (§5). Bounding the pool keeps a multi-hundred-page
// document from fanning out one goroutine per page at once.
func (e *Engine) ValidatePages(inputs []PageInput) []PageValidationResult {
	results := make([]PageValidationResult, len(inputs))
	if len(inputs) == 0 {
		return results
	}

	workers := e.concurrency
	if workers > len(inputs) {
		workers = len(inputs)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = e.ValidatePage(inputs[i])
			}
		}()
	}

	for i := range inputs {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return results
}

// ValidateDocument aggregates every page's alerts and appends cross-page
// alerts in the fixed order: page-completeness, batch-number, lot-number,
// chronological (batch date bounds).
func (e *Engine) ValidateDocument(documentID string, pageResults []PageValidationResult) DocumentValidationSummary {
	var crossPage []model.ValidationAlert

	crossPage = append(crossPage, e.paginationAlerts(pageResults)...)
	crossPage = append(crossPage, e.identifierAlerts(identifier.KindBatch, pageResults)...)
	crossPage = append(crossPage, e.identifierAlerts(identifier.KindLot, pageResults)...)
	crossPage = append(crossPage, e.dateBoundsAlerts(pageResults)...)

	bySeverity := make(map[model.Severity]int, len(model.AllSeverities))
	for _, s := range model.AllSeverities {
		bySeverity[s] = 0
	}
	byCategory := make(map[model.AlertCategory]int, len(model.AllCategories))
	for _, c := range model.AllCategories {
		byCategory[c] = 0
	}

	count := func(a model.ValidationAlert) {
		bySeverity[a.Severity]++
		byCategory[a.Category]++
	}

	totalAlerts := 0
	formulasChecked := 0
	formulaDiscrepancies := 0

	for _, pr := range pageResults {
		for _, a := range pr.Alerts {
			count(a)
			totalAlerts++
		}
		formulasChecked += len(pr.DetectedFormulas)
		for _, f := range pr.DetectedFormulas {
			if !f.IsWithinTolerance {
				formulaDiscrepancies++
			}
		}
	}
	for _, a := range crossPage {
		count(a)
		totalAlerts++
	}

	return DocumentValidationSummary{
		DocumentID:           documentID,
		TotalPages:           len(pageResults),
		PagesValidated:       len(pageResults),
		TotalAlerts:          totalAlerts,
		AlertsBySeverity:     bySeverity,
		AlertsByCategory:     byCategory,
		FormulasChecked:      formulasChecked,
		FormulaDiscrepancies: formulaDiscrepancies,
		CrossPageIssues:      crossPage,
		ValidationTimestamp:  time.Now().UTC().Format(time.RFC3339),
		IsComplete:           true,
	}
}

func (e *Engine) paginationAlerts(pageResults []PageValidationResult) []model.ValidationAlert {
	extractions := make([]pagination.Extraction, 0, len(pageResults))
	for _, pr := range pageResults {
		current, total, ok := pagination.ExtractPageNumber(pr.ExtractedText)
		extractions = append(extractions, pagination.Extraction{
			PhysicalPage: pr.PageNumber,
			Current:      current,
			Total:        total,
			Found:        ok,
		})
	}
	return pagination.Analyze(e.ids, extractions)
}

func (e *Engine) identifierAlerts(kind identifier.Kind, pageResults []PageValidationResult) []model.ValidationAlert {
	var alerts []model.ValidationAlert
	var records []identifier.PageRecord

	for _, pr := range pageResults {
		rec, conflict := identifier.ExtractPage(e.ids, kind, pr.PageNumber, pr.ExtractedValues, pr.ExtractedText)
		if conflict != nil {
			alerts = append(alerts, *conflict)
		}
		if rec == nil {
			continue
		}
		if rec.Empty {
			alerts = append(alerts, identifier.MissingValueAlert(e.ids, kind, pr.PageNumber))
			continue
		}
		records = append(records, *rec)
	}

	alerts = append(alerts, identifier.Aggregate(e.ids, kind, records)...)
	return alerts
}

func (e *Engine) dateBoundsAlerts(pageResults []PageValidationResult) []model.ValidationAlert {
	pages := make([]datebounds.PageInput, 0, len(pageResults))
	for _, pr := range pageResults {
		pages = append(pages, datebounds.PageInput{
			PageNumber: pr.PageNumber,
			Values:     pr.ExtractedValues,
			RawText:    pr.ExtractedText,
		})
	}

	bounds, alerts := datebounds.Reconcile(e.ids, pages)
	for _, pr := range pageResults {
		alerts = append(alerts, datebounds.ValidateWindow(e.ids, bounds, pr.PageNumber, pr.ExtractedValues, pr.ExtractedText)...)
	}
	return alerts
}
