/**
 * Input shapes accepted by the Value Extractor: the upstream OCR/document-
 * understanding collaborator's per-page metadata.extraction payload (§6).
 */

package extractor

import "github.com/pharmalabs/bmrvalidate/internal/model"

// FormField is a single labelled field as extracted by the upstream OCR
// pipeline.
type FormField struct {
	FieldName   string
	FieldValue  string
	BoundingBox model.BoundingBox
	Confidence  *float64
}

// TableCell is a single cell within a table row.
type TableCell struct {
	Text        string
	IsHeader    bool
	RowIndex    int
	ColIndex    int
	ColSpan     int
	RowSpan     int
	BoundingBox model.BoundingBox
	Confidence  *float64
}

// TableRow is one row of a table.
type TableRow struct {
	Cells []TableCell
}

// Table is an upstream-extracted table; its first row is treated as the
// header row.
type Table struct {
	Rows        []TableRow
	Confidence  *float64
	BoundingBox model.BoundingBox
}

// HandwrittenRegion is an OCR hit against a handwritten annotation.
type HandwrittenRegion struct {
	Text        string
	NearbyLabel string
	BoundingBox model.BoundingBox
	Confidence  *float64
}

// PageMetadata bundles the three structured extraction shapes the upstream
// pipeline produces for one page.
type PageMetadata struct {
	FormFields  []FormField
	Tables      []Table
	Handwritten []HandwrittenRegion
}

const (
	defaultFormFieldConfidence   = 0.8
	defaultHandwrittenConfidence = 0.7
	defaultTableCellConfidence   = 0.8
	rawTextConfidence            = 0.6
)
