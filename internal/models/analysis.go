package models

import "encoding/json"

// Entities groups the named entities the analysis model is asked to extract.
// The schema is closed: unrecognized fields stay in the raw payload only.
type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Dates         []string `json:"dates"`
	Amounts       []string `json:"amounts"`
	Addresses     []string `json:"addresses"`
	References    []string `json:"references"`
}

// AnalysisResult is the structured metadata returned by the document
// understanding model. Category is the required discriminator; a response
// without it is treated as malformed and discarded.
type AnalysisResult struct {
	Category           string    `json:"category"`
	CategoryConfidence float64   `json:"category_confidence"`
	Summary            string    `json:"summary"`
	Tags               []string  `json:"tags"`
	Entities           *Entities `json:"entities"`
	Language           string    `json:"language"`
	DocumentDate       string    `json:"document_date"`
	KeyPoints          []string  `json:"key_points"`

	// Raw is the verbatim model response the typed fields were parsed from.
	Raw json.RawMessage `json:"-"`
}
