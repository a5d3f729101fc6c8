// Package matching orchestrates advisor matching: it turns a profile or a
// free-text query into an embedding, runs the vector index, hydrates and
// filters candidates from the store, and ranks the result with explanations.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// DefaultTopK bounds result sets when the caller does not ask for a size.
const DefaultTopK = 50

// overfetchFactor widens the index query so post-filtering still fills topK.
const overfetchFactor = 2

// Service handles profile matching and ad-hoc advisor search.
type Service struct {
	profiles    ProfileRepository
	advisors    AdvisorRepository
	idx         Index
	embed       Embedder
	logger      *zap.Logger
	defaultTopK int
}

// New creates a matching service.
func New(profiles ProfileRepository, advisors AdvisorRepository, idx Index, embed Embedder, logger *zap.Logger) *Service {
	return &Service{
		profiles:    profiles,
		advisors:    advisors,
		idx:         idx,
		embed:       embed,
		logger:      logger,
		defaultTopK: DefaultTopK,
	}
}

// WithTopK overrides the result-set size applied when a request does not ask
// for one. Non-positive values keep the current default.
func (s *Service) WithTopK(topK int) *Service {
	if topK > 0 {
		s.defaultTopK = topK
	}
	return s
}

// FindMatches ranks advisors against a stored profile. The profile's cached
// embedding is reused when present; otherwise one is derived from its text
// and cached best-effort.
func (s *Service) FindMatches(
	ctx context.Context, profileID string, filters *domain.Filters, topK int,
) (domain.MatchResult, error) {
	start := time.Now()

	if topK <= 0 {
		topK = s.defaultTopK
	}

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("get profile: %w", err)
	}

	text := embeddableText(profile)
	vector := profile.ResumeEmbedding
	if len(vector) == 0 {
		if text == "" {
			return domain.MatchResult{}, fmt.Errorf(
				"profile %s has no resume, interests, or field of study: %w",
				profileID, domain.ErrNoEmbeddableContent)
		}

		embResult, err := s.embed.Embed(ctx, text)
		if err != nil {
			return domain.MatchResult{}, fmt.Errorf("vectorize profile: %w", err)
		}
		vector = embResult.Embedding

		// Cache write is best-effort: a failed write costs one extra
		// provider call on the next request, never the request itself.
		if err := s.profiles.SaveEmbedding(ctx, profileID, vector); err != nil {
			s.logger.Warn("failed to cache profile embedding",
				zap.String("profile_id", profileID),
				zap.Error(err))
		}
	}

	matches, err := s.rank(ctx, vector, filters, topK, 0, profile.ResearchInterests, text)
	if err != nil {
		return domain.MatchResult{}, err
	}

	return domain.MatchResult{
		ProfileID:        profileID,
		Matches:          matches,
		TotalMatches:     len(matches),
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// Search runs an ad-hoc advisor query. With query text it behaves like
// FindMatches keyed off the literal query; without it the call degrades to a
// filter-only store listing with zero scores.
func (s *Service) Search(
	ctx context.Context, query string, filters *domain.Filters, limit, offset int,
) (domain.SearchResult, error) {
	start := time.Now()

	if limit <= 0 {
		limit = s.defaultTopK
	}

	var matches []domain.Match

	if strings.TrimSpace(query) == "" {
		advisors, err := s.advisors.ListFiltered(ctx, nil, filters, offset, limit)
		if err != nil {
			return domain.SearchResult{}, fmt.Errorf("list advisors: %w", err)
		}
		matches = make([]domain.Match, len(advisors))
		for i, adv := range advisors {
			matches[i] = domain.Match{Advisor: adv}
		}
	} else {
		embResult, err := s.embed.Embed(ctx, query)
		if err != nil {
			return domain.SearchResult{}, fmt.Errorf("vectorize query: %w", err)
		}

		matches, err = s.rank(ctx, embResult.Embedding, filters, limit, offset, nil, query)
		if err != nil {
			return domain.SearchResult{}, err
		}
	}

	return domain.SearchResult{
		Advisors:    matches,
		TotalCount:  len(matches),
		QueryTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// rank runs the index with over-fetch, intersects candidates with the store
// filters, and returns scored matches sorted by descending similarity.
func (s *Service) rank(
	ctx context.Context, vector []float32, filters *domain.Filters, topK, offset int,
	interests []string, sourceText string,
) ([]domain.Match, error) {
	candidates, err := s.idx.Search(vector, (topK+offset)*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	if len(candidates) == 0 {
		return []domain.Match{}, nil
	}

	ids := make([]string, len(candidates))
	scores := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.AdvisorID
		scores[c.AdvisorID] = c.Score
	}

	advisors, err := s.advisors.ListFiltered(ctx, ids, filters, offset, topK)
	if err != nil {
		return nil, fmt.Errorf("hydrate candidates: %w", err)
	}

	matches := make([]domain.Match, 0, len(advisors))
	for _, adv := range advisors {
		score := scores[adv.OpenAlexID]
		matches = append(matches, domain.Match{
			Advisor:     adv,
			Score:       score,
			Explanation: explain(score, interests, sourceText, adv),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// embeddableText derives the text to vectorize for a profile, preferring the
// richest source: resume text, then joined interests, then field of study.
func embeddableText(p domain.Profile) string {
	if strings.TrimSpace(p.ResumeText) != "" {
		return p.ResumeText
	}
	if len(p.ResearchInterests) > 0 {
		return strings.Join(p.ResearchInterests, ", ")
	}
	return strings.TrimSpace(p.FieldOfStudy)
}
