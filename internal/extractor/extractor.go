/**
 * Value Extractor (§4.2)
 *
 * Normalizes the four upstream shapes — structured form field, table cell,
 * handwritten region, text-pattern hit — into a single ExtractedValue
 * stream that every downstream detector and rule engine consumes.
 */

package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pharmalabs/bmrvalidate/internal/model"
	"github.com/pharmalabs/bmrvalidate/internal/normalize"
)

// Extractor turns page metadata and raw OCR text into typed values.
type Extractor struct {
	ids *model.IDGenerator
}

// New creates an Extractor that mints value ids from the given generator.
func New(ids *model.IDGenerator) *Extractor {
	return &Extractor{ids: ids}
}

// Extract runs the full §4.2 pipeline for one page.
func (e *Extractor) Extract(pageNumber int, sectionType string, meta PageMetadata, rawText string) []model.ExtractedValue {
	var values []model.ExtractedValue

	for _, f := range meta.FormFields {
		values = append(values, e.fromFormField(pageNumber, sectionType, f))
	}

	for _, tbl := range meta.Tables {
		values = append(values, e.fromTable(pageNumber, sectionType, tbl)...)
	}

	for _, h := range meta.Handwritten {
		values = append(values, e.fromHandwritten(pageNumber, sectionType, h))
	}

	values = append(values, e.fromRawText(pageNumber, sectionType, rawText)...)

	return values
}

func (e *Extractor) fromFormField(pageNumber int, sectionType string, f FormField) model.ExtractedValue {
	numeric, hasNumeric := normalize.ExtractNumeric(f.FieldValue)
	valueType := normalize.DetermineValueType(f.FieldValue)
	unit, _ := normalize.ExtractUnit(f.FieldValue)

	confidence := defaultFormFieldConfidence
	if f.Confidence != nil {
		confidence = *f.Confidence
	}

	v := model.ExtractedValue{
		ID:         e.ids.Next("value"),
		RawValue:   f.FieldValue,
		Unit:       unit,
		ValueType:  model.ValueType(valueType),
		Confidence: confidence,
		Source: model.SourceLocation{
			PageNumber:  pageNumber,
			SectionType: sectionType,
			FieldLabel:  f.FieldName,
			BoundingBox: f.BoundingBox,
		},
	}
	if hasNumeric && valueType == "numeric" {
		n := numeric
		v.NumericValue = &n
	}
	return v
}

func (e *Extractor) fromTable(pageNumber int, sectionType string, tbl Table) []model.ExtractedValue {
	var values []model.ExtractedValue
	if len(tbl.Rows) == 0 {
		return values
	}

	headers := make(map[int]string)
	for i, cell := range tbl.Rows[0].Cells {
		headers[i] = strings.TrimSpace(cell.Text)
	}

	defaultConfidence := defaultTableCellConfidence
	if tbl.Confidence != nil {
		defaultConfidence = *tbl.Confidence
	}

	rowNum := 0
	for _, row := range tbl.Rows[1:] {
		rowNum++
		for colIdx, cell := range row.Cells {
			if !containsDigit(cell.Text) {
				continue
			}

			header := headers[colIdx]
			if header == "" {
				header = fmt.Sprintf("Column %d", colIdx+1)
			}

			confidence := defaultConfidence
			if cell.Confidence != nil {
				confidence = *cell.Confidence
			}

			numeric, hasNumeric := normalize.ExtractNumeric(cell.Text)
			v := model.ExtractedValue{
				ID:         e.ids.Next("value"),
				RawValue:   cell.Text,
				ValueType:  model.ValueNumeric,
				Confidence: confidence,
				Source: model.SourceLocation{
					PageNumber:         pageNumber,
					SectionType:        sectionType,
					FieldLabel:         header,
					BoundingBox:        cell.BoundingBox,
					SurroundingContext: fmt.Sprintf("Row %d, %s", rowNum, header),
				},
			}
			if hasNumeric {
				n := numeric
				v.NumericValue = &n
			}
			values = append(values, v)
		}
	}
	return values
}

func (e *Extractor) fromHandwritten(pageNumber int, sectionType string, h HandwrittenRegion) model.ExtractedValue {
	label := h.NearbyLabel
	if label == "" {
		label = "Handwritten entry"
	}

	confidence := defaultHandwrittenConfidence
	if h.Confidence != nil {
		confidence = *h.Confidence
	}

	numeric, hasNumeric := normalize.ExtractNumeric(h.Text)
	valueType := normalize.DetermineValueType(h.Text)
	unit, _ := normalize.ExtractUnit(h.Text)

	v := model.ExtractedValue{
		ID:            e.ids.Next("value"),
		RawValue:      h.Text,
		Unit:          unit,
		ValueType:     model.ValueType(valueType),
		Confidence:    confidence,
		IsHandwritten: true,
		Source: model.SourceLocation{
			PageNumber:  pageNumber,
			SectionType: sectionType,
			FieldLabel:  label,
			BoundingBox: h.BoundingBox,
		},
	}
	if hasNumeric && valueType == "numeric" {
		n := numeric
		v.NumericValue = &n
	}
	return v
}

// rawTextPattern is one of the fixed labelled regexes applied to raw OCR
// text. The regex must contain exactly one capture group: the token to
// emit as the extracted value.
type rawTextPattern struct {
	fieldLabel string
	re         *regexp.Regexp
}

var rawTextPatterns = []rawTextPattern{
	{"Yield", regexp.MustCompile(`(?i)\byield\b[^0-9%+-]{0,20}([+-]?\d+(?:\.\d+)?\s*%?)`)},
	{"Temperature", regexp.MustCompile(`(?i)\btemp(?:erature)?\b[^0-9+-]{0,20}([+-]?\d+(?:\.\d+)?\s*°?\s*[cf]?)`)},
	{"Pressure", regexp.MustCompile(`(?i)\bpressure\b[^0-9+-]{0,20}([+-]?\d+(?:\.\d+)?\s*(?:psi|bar|kpa|mbar)?)`)},
	{"pH", regexp.MustCompile(`(?i)\bph\b[^0-9+-]{0,10}([+-]?\d+(?:\.\d+)?)`)},
	{"Volume", regexp.MustCompile(`(?i)\bvolume\b[^0-9+-]{0,20}([+-]?\d+(?:\.\d+)?\s*(?:ml|l|liters?)?)`)},
	{"Weight", regexp.MustCompile(`(?i)\bweight\b[^0-9+-]{0,20}([+-]?\d+(?:\.\d+)?\s*(?:kg|g|mg)?)`)},
	{"Duration", regexp.MustCompile(`(?i)\b(?:time|duration)\b[^0-9+-]{0,20}([+-]?\d+(?:\.\d+)?\s*(?:hrs?|hours?|mins?|minutes?|secs?|seconds?)?)`)},
	{"Flow Rate", regexp.MustCompile(`(?i)\bflow\s*rate\b[^0-9+-]{0,20}([+-]?\d+(?:\.\d+)?\s*(?:ml/min|l/min|gpm)?)`)},
	{"Batch Number", regexp.MustCompile(`(?i)\bbatch\s*(?:no\.?|number|#)?\s*[:\-]?\s*([A-Za-z0-9\-/]+)`)},
	{"Lot Number", regexp.MustCompile(`(?i)\blot\s*(?:no\.?|number|#)?\s*[:\-]?\s*([A-Za-z0-9\-/]+)`)},
	{"Equipment ID", regexp.MustCompile(`(?i)\bequipment\s*(?:id|number|#)?\s*[:\-]?\s*([A-Za-z0-9\-]+)`)},
}

func (e *Extractor) fromRawText(pageNumber int, sectionType string, text string) []model.ExtractedValue {
	var values []model.ExtractedValue
	if text == "" {
		return values
	}

	for _, p := range rawTextPatterns {
		matches := p.re.FindAllStringSubmatchIndex(text, -1)
		for _, m := range matches {
			if len(m) < 4 {
				continue
			}
			matchStart, matchEnd := m[0], m[1]
			token := strings.TrimSpace(text[m[2]:m[3]])
			if token == "" {
				continue
			}

			ctxStart := matchStart - 50
			if ctxStart < 0 {
				ctxStart = 0
			}
			ctxEnd := matchEnd + 50
			if ctxEnd > len(text) {
				ctxEnd = len(text)
			}

			numeric, hasNumeric := normalize.ExtractNumeric(token)
			valueType := normalize.DetermineValueType(token)
			unit, _ := normalize.ExtractUnit(token)

			v := model.ExtractedValue{
				ID:         e.ids.Next("value"),
				RawValue:   token,
				Unit:       unit,
				ValueType:  model.ValueType(valueType),
				Confidence: rawTextConfidence,
				Source: model.SourceLocation{
					PageNumber:         pageNumber,
					SectionType:        sectionType,
					FieldLabel:         p.fieldLabel,
					SurroundingContext: text[ctxStart:ctxEnd],
				},
			}
			if hasNumeric && valueType == "numeric" {
				n := numeric
				v.NumericValue = &n
			}
			values = append(values, v)
		}
	}
	return values
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
