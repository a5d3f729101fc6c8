package matching

import (
	"regexp"
	"strings"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

const maxCommonKeywords = 10

var wordPattern = regexp.MustCompile(`[a-z]{4,}`)

// explain builds the per-match rationale: interest tags shared with the
// advisor's concepts plus salient words shared between the two free texts.
func explain(score float64, interests []string, profileText string, adv domain.Advisor) domain.Explanation {
	return domain.Explanation{
		SimilarityScore:  score,
		MatchingConcepts: matchingConcepts(interests, adv.Concepts),
		CommonKeywords:   commonKeywords(profileText, adv.ResearchSummary),
	}
}

// matchingConcepts intersects interest tags with advisor concepts,
// case-insensitively. Output is lowercased, in the order the advisor's
// concepts are listed.
func matchingConcepts(interests []string, concepts []domain.Concept) []string {
	if len(interests) == 0 || len(concepts) == 0 {
		return nil
	}

	wanted := make(map[string]struct{}, len(interests))
	for _, in := range interests {
		in = strings.ToLower(strings.TrimSpace(in))
		if in != "" {
			wanted[in] = struct{}{}
		}
	}

	var shared []string
	for _, c := range concepts {
		name := strings.ToLower(c.DisplayName)
		if _, ok := wanted[name]; ok {
			shared = append(shared, name)
			delete(wanted, name)
		}
	}
	return shared
}

// commonKeywords intersects word tokens (length >= 4) of the two texts.
// Tokens keep first-encountered order from the first text so results are
// deterministic; the list is capped at maxCommonKeywords.
func commonKeywords(a, b string) []string {
	if a == "" || b == "" {
		return nil
	}

	inB := make(map[string]struct{})
	for _, tok := range wordPattern.FindAllString(strings.ToLower(b), -1) {
		inB[tok] = struct{}{}
	}
	if len(inB) == 0 {
		return nil
	}

	var shared []string
	seen := make(map[string]struct{})
	for _, tok := range wordPattern.FindAllString(strings.ToLower(a), -1) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := inB[tok]; ok {
			shared = append(shared, tok)
			if len(shared) == maxCommonKeywords {
				break
			}
		}
	}
	return shared
}
