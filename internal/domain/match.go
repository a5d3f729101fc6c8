package domain

// Filters narrows a candidate set by advisor and institution attributes.
// Every field is optional; all present fields are combined with logical AND.
type Filters struct {
	University string   // substring match on institution name
	Country    string   // substring match on institution country
	City       string   // substring match on institution city
	Concepts   []string // match advisors tagged with any of these concepts

	MinWorksCount int
	MinCitations  int
}

// IsZero reports whether no filter field is set.
func (f *Filters) IsZero() bool {
	if f == nil {
		return true
	}
	return f.University == "" && f.Country == "" && f.City == "" &&
		len(f.Concepts) == 0 && f.MinWorksCount == 0 && f.MinCitations == 0
}

// Candidate is one nearest-neighbor hit: an advisor identifier with its
// similarity score in (0,1]. Produced per query, never persisted.
type Candidate struct {
	AdvisorID string
	Score     float64
}

// Explanation tells a user why an advisor matched: the concept names shared
// with the profile's interests and the salient keywords shared between the
// two free texts.
type Explanation struct {
	SimilarityScore  float64  `json:"similarity_score"`
	MatchingConcepts []string `json:"matching_concepts"`
	CommonKeywords   []string `json:"common_keywords"`
}

// Match is one ranked result of a match or search request.
type Match struct {
	Advisor     Advisor
	Score       float64
	Explanation Explanation
}

// MatchResult is the outcome of a FindMatches call.
type MatchResult struct {
	ProfileID        string
	Matches          []Match
	TotalMatches     int
	ProcessingTimeMS float64
}

// SearchResult is the outcome of a Search call. Scores are zero in
// filter-only mode (no query text given).
type SearchResult struct {
	Advisors    []Match
	TotalCount  int
	QueryTimeMS float64
}
