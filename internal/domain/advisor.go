package domain

import "time"

// Concept is a scored topical tag attached to an advisor (bibliographic
// "research area" with a relevance score).
type Concept struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Advisor is a matchable researcher record. OpenAlexID is globally unique
// and immutable once assigned; Embedding, when present, has the configured
// index dimension.
type Advisor struct {
	OpenAlexID    string
	Name          string
	DisplayName   string
	InstitutionID string // empty when the feed reports no affiliation

	WorksCount   int
	CitedByCount int
	HIndex       int
	I10Index     int

	Concepts        []Concept
	ResearchSummary string

	ORCID       string
	HomepageURL string

	Embedding []float32 // nil until computed

	// InstitutionName is hydrated on filtered reads, not stored on the row.
	InstitutionName string

	CreatedAt   time.Time
	LastUpdated time.Time
}
