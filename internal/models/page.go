package models

import (
	"time"
)

// BoundingBox is an axis-aligned box [xMin, yMin, xMax, yMax] in page pixel
// coordinates.
type BoundingBox [4]float64

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (x, y float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// Contains reports whether the given point falls inside the box.
func (b BoundingBox) Contains(x, y float64) bool {
	return b[0] <= x && x <= b[2] && b[1] <= y && y <= b[3]
}

// TextBlock is a single recognized text region on a page.
type TextBlock struct {
	Text       string      `json:"text"`
	BBox       BoundingBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// Table is a reconstructed grid detected on a page. It has no identity of its
// own; tables are recomputed from scratch on every processing pass.
type Table struct {
	BBox BoundingBox `json:"bbox"`
	HTML string      `json:"html"`
}

// TextBlocks and Tables are stored as JSONB columns.
type (
	TextBlocks []TextBlock
	Tables     []Table
)

// PageResult holds the OCR and table-extraction output for one page of a
// document. Rows are deleted together with their document and wiped by a
// reprocess.
type PageResult struct {
	ID           uint       `gorm:"primaryKey"`
	DocumentID   string     `gorm:"type:uuid;not null;uniqueIndex:idx_doc_page,priority:1"`
	PageNumber   int        `gorm:"not null;uniqueIndex:idx_doc_page,priority:2"`
	Width        int        `gorm:"not null"`
	Height       int        `gorm:"not null"`
	FullText     string     `gorm:"type:text"`
	Blocks       TextBlocks `gorm:"type:jsonb"`
	Tables       Tables     `gorm:"type:jsonb"`
	PageImageKey string     `gorm:"size:1000"`
	Confidence   float64
	CreatedAt    time.Time
}
