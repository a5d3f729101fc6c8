// Package chi implements the HTTP API: matching, search, ingestion triggers,
// index rebuild, health, and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scholarmatch/scholarmatch/internal/domain"
	logpkg "github.com/scholarmatch/scholarmatch/internal/logger"
	healthuc "github.com/scholarmatch/scholarmatch/internal/usecase/health"
	syncuc "github.com/scholarmatch/scholarmatch/internal/usecase/sync"
)

// MatchingService runs profile matching and ad-hoc search.
type MatchingService interface {
	FindMatches(ctx context.Context, profileID string, filters *domain.Filters, topK int) (domain.MatchResult, error)
	Search(ctx context.Context, query string, filters *domain.Filters, limit, offset int) (domain.SearchResult, error)
}

// SyncService triggers feed ingestion and index rebuilds.
type SyncService interface {
	SyncInstitution(ctx context.Context, ror string) (syncuc.Report, error)
	RebuildFromStore(ctx context.Context) (int, error)
}

// HealthService aggregates readiness checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	matching      MatchingService
	sync          SyncService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(matching MatchingService, sync SyncService, health HealthService, logger *zap.Logger) *Server {
	s := &Server{
		matching: matching,
		sync:     sync,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrNoEmbeddableContent, http.StatusUnprocessableEntity, "no_embeddable_content"),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrUpstreamFailure, http.StatusBadGateway, "upstream_error"),
		sentinelHandler(domain.ErrStoreFailure, http.StatusInternalServerError, "store_error"),
	}
	return s
}

// Routes mounts all API endpoints on a fresh router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/matching/find", s.FindMatches)
		r.Post("/search", s.Search)
		r.Post("/sync/institutions/{ror}", s.SyncInstitution)
		r.Post("/index/rebuild", s.RebuildIndex)
	})
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type filtersPayload struct {
	University    string   `json:"university,omitempty"`
	Country       string   `json:"country,omitempty"`
	City          string   `json:"city,omitempty"`
	Concepts      []string `json:"concepts,omitempty"`
	MinWorksCount int      `json:"min_works_count,omitempty"`
	MinCitations  int      `json:"min_citations,omitempty"`
}

func (p *filtersPayload) toDomain() *domain.Filters {
	if p == nil {
		return nil
	}
	return &domain.Filters{
		University:    p.University,
		Country:       p.Country,
		City:          p.City,
		Concepts:      p.Concepts,
		MinWorksCount: p.MinWorksCount,
		MinCitations:  p.MinCitations,
	}
}

type advisorPayload struct {
	OpenAlexID      string           `json:"openalex_id"`
	Name            string           `json:"name"`
	InstitutionID   string           `json:"institution_id,omitempty"`
	InstitutionName string           `json:"institution_name,omitempty"`
	WorksCount      int              `json:"works_count"`
	CitedByCount    int              `json:"cited_by_count"`
	HIndex          int              `json:"h_index"`
	I10Index        int              `json:"i10_index"`
	Concepts        []domain.Concept `json:"concepts,omitempty"`
	ResearchSummary string           `json:"research_summary,omitempty"`
	ORCID           string           `json:"orcid,omitempty"`
	HomepageURL     string           `json:"homepage_url,omitempty"`
}

type matchPayload struct {
	Advisor     advisorPayload     `json:"advisor"`
	Score       float64            `json:"score"`
	Explanation domain.Explanation `json:"explanation"`
}

func advisorToPayload(adv domain.Advisor) advisorPayload {
	return advisorPayload{
		OpenAlexID:      adv.OpenAlexID,
		Name:            adv.Name,
		InstitutionID:   adv.InstitutionID,
		InstitutionName: adv.InstitutionName,
		WorksCount:      adv.WorksCount,
		CitedByCount:    adv.CitedByCount,
		HIndex:          adv.HIndex,
		I10Index:        adv.I10Index,
		Concepts:        adv.Concepts,
		ResearchSummary: adv.ResearchSummary,
		ORCID:           adv.ORCID,
		HomepageURL:     adv.HomepageURL,
	}
}

func matchesToPayload(matches []domain.Match) []matchPayload {
	out := make([]matchPayload, len(matches))
	for i, m := range matches {
		out[i] = matchPayload{
			Advisor:     advisorToPayload(m.Advisor),
			Score:       m.Score,
			Explanation: m.Explanation,
		}
	}
	return out
}

// FindMatches handles POST /api/v1/matching/find.
func (s *Server) FindMatches(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfileID string          `json:"profile_id"`
		Filters   *filtersPayload `json:"filters"`
		TopK      int             `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "profile_id is required")
		return
	}

	result, err := s.matching.FindMatches(r.Context(), req.ProfileID, req.Filters.toDomain(), req.TopK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		ProfileID        string         `json:"profile_id"`
		Matches          []matchPayload `json:"matches"`
		TotalMatches     int            `json:"total_matches"`
		ProcessingTimeMS float64        `json:"processing_time_ms"`
	}{
		ProfileID:        result.ProfileID,
		Matches:          matchesToPayload(result.Matches),
		TotalMatches:     result.TotalMatches,
		ProcessingTimeMS: result.ProcessingTimeMS,
	})
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query   string          `json:"query"`
		Filters *filtersPayload `json:"filters"`
		Limit   int             `json:"limit"`
		Offset  int             `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	result, err := s.matching.Search(r.Context(), req.Query, req.Filters.toDomain(), req.Limit, req.Offset)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Advisors    []matchPayload `json:"advisors"`
		TotalCount  int            `json:"total_count"`
		QueryTimeMS float64        `json:"query_time_ms"`
	}{
		Advisors:    matchesToPayload(result.Advisors),
		TotalCount:  result.TotalCount,
		QueryTimeMS: result.QueryTimeMS,
	})
}

// SyncInstitution handles POST /api/v1/sync/institutions/{ror}.
func (s *Server) SyncInstitution(w http.ResponseWriter, r *http.Request) {
	ror := chi.URLParam(r, "ror")
	if ror == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "institution ror id is required")
		return
	}

	start := time.Now()
	report, err := s.sync.SyncInstitution(r.Context(), ror)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Created   int     `json:"created"`
		Updated   int     `json:"updated"`
		Failed    int     `json:"failed"`
		Pages     int     `json:"pages"`
		ElapsedMS float64 `json:"elapsed_ms"`
	}{
		Created:   report.Created,
		Updated:   report.Updated,
		Failed:    report.Failed,
		Pages:     report.Pages,
		ElapsedMS: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// RebuildIndex handles POST /api/v1/index/rebuild.
func (s *Server) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	count, err := s.sync.RebuildFromStore(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Vectors int `json:"vectors"`
	}{Vectors: count})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, struct {
		Status       healthuc.Status                 `json:"status"`
		Checks       map[string]healthuc.CheckResult `json:"checks"`
		IndexVectors int                             `json:"index_vectors"`
	}{
		Status:       report.Status,
		Checks:       report.Checks,
		IndexVectors: report.IndexVectors,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// The request-scoped logger carries the request id when the logging
	// middleware is installed.
	logpkg.FromContext(r.Context()).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// safeDomainMessage returns a client-facing message for known sentinels and
// hides internal details otherwise.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrNoEmbeddableContent,
		domain.ErrValidation,
		domain.ErrProviderUnavailable,
		domain.ErrUpstreamFailure,
		domain.ErrStoreFailure,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}
