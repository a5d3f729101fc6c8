// Package sync implements the ingestion pipeline: it pages author records
// from the external feed, resolves affiliations, embeds deterministic
// summaries, and keeps the store and the vector index in step.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scholarmatch/scholarmatch/internal/domain"
	"github.com/scholarmatch/scholarmatch/internal/index"
	"github.com/scholarmatch/scholarmatch/internal/metrics"
	"github.com/scholarmatch/scholarmatch/internal/transport/openalex"
)

// summaryConceptLimit bounds how many research areas feed the summary text.
const summaryConceptLimit = 5

// Config holds pipeline settings.
type Config struct {
	PageDelay   time.Duration
	VectorPath  string
	MappingPath string
}

// Report summarizes one sync run.
type Report struct {
	Created int
	Updated int
	Failed  int
	Pages   int
}

// Service ingests advisors from the external feed into the store and index.
type Service struct {
	feed         Feed
	advisors     AdvisorRepository
	institutions InstitutionRepository
	idx          Index
	embed        Embedder
	cfg          Config
	logger       *zap.Logger
}

// New creates a sync service.
func New(
	feed Feed, advisors AdvisorRepository, institutions InstitutionRepository,
	idx Index, embed Embedder, cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		feed:         feed,
		advisors:     advisors,
		institutions: institutions,
		idx:          idx,
		embed:        embed,
		cfg:          cfg,
		logger:       logger,
	}
}

// SyncInstitution ingests every author affiliated with the institution
// identified by its ROR id. Summaries are embedded one page at a time, in a
// single provider call where supported. Individual record failures are
// counted and skipped; a transport failure ends the run. The index is
// persisted once after the run, whether or not records failed.
func (s *Service) SyncInstitution(ctx context.Context, ror string) (Report, error) {
	start := time.Now()

	var report Report

	// Affiliation names resolved this run, so repeated authors from the
	// same institution cost one detail fetch.
	instNames := make(map[string]string)

	cursor := openalex.FirstCursor
	for {
		page, err := s.feed.AuthorsPage(ctx, ror, cursor)
		if err != nil {
			return report, fmt.Errorf("fetch authors page %d: %w", report.Pages+1, err)
		}
		report.Pages++

		s.ingestPage(ctx, page.Records, instNames, &report)

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor

		if s.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.cfg.PageDelay):
			}
		}
	}

	if err := s.persistIndex(); err != nil {
		return report, err
	}

	metrics.SyncRunDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("institution sync complete",
		zap.String("ror", ror),
		zap.Int("pages", report.Pages),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed))

	return report, nil
}

// RebuildFromStore replaces the index wholesale from every advisor row that
// carries an embedding, then persists it. Returns the number of vectors.
func (s *Service) RebuildFromStore(ctx context.Context) (int, error) {
	advisors, err := s.advisors.ListEmbedded(ctx)
	if err != nil {
		return 0, fmt.Errorf("list embedded advisors: %w", err)
	}

	entries := make([]index.Entry, len(advisors))
	for i, adv := range advisors {
		entries[i] = index.Entry{AdvisorID: adv.OpenAlexID, Vector: adv.Embedding}
	}

	if err := s.idx.Rebuild(entries); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	if err := s.persistIndex(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// preparedRecord is a page record that cleared validation and affiliation
// resolution and is waiting on its embedding.
type preparedRecord struct {
	advisor domain.Advisor
	created bool
}

// ingestPage runs one page in three phases: prepare every record, vectorize
// the surviving summaries in one provider round trip, then store and index
// each advisor. Failures stay per record throughout.
func (s *Service) ingestPage(
	ctx context.Context, records []openalex.AuthorRecord, instNames map[string]string, report *Report,
) {
	prepared := make([]preparedRecord, 0, len(records))
	texts := make([]string, 0, len(records))
	for _, rec := range records {
		p, err := s.prepareRecord(ctx, rec, instNames)
		if err != nil {
			s.countFailure(rec.ID, err, report)
			continue
		}
		prepared = append(prepared, p)
		texts = append(texts, p.advisor.ResearchSummary)
	}
	if len(prepared) == 0 {
		return
	}

	vectors, err := s.embedPage(ctx, texts)
	if err != nil {
		// One bad text fails the whole batch call. Retry record by record
		// so the rest of the page still lands.
		s.logger.Warn("batch embed failed, retrying per record",
			zap.Int("records", len(texts)),
			zap.Error(err))
		vectors = make([][]float32, len(texts))
		for i, text := range texts {
			res, embedErr := s.embed.Embed(ctx, text)
			if embedErr != nil {
				s.countFailure(prepared[i].advisor.OpenAlexID,
					fmt.Errorf("embed summary: %w", embedErr), report)
				continue
			}
			vectors[i] = res.Embedding
		}
	}

	for i, p := range prepared {
		if vectors[i] == nil {
			continue
		}
		p.advisor.Embedding = vectors[i]
		if err := s.storeRecord(ctx, p.advisor); err != nil {
			s.countFailure(p.advisor.OpenAlexID, err, report)
			continue
		}
		if p.created {
			report.Created++
			metrics.SyncRecordsTotal.WithLabelValues("created").Inc()
		} else {
			report.Updated++
			metrics.SyncRecordsTotal.WithLabelValues("updated").Inc()
		}
	}
}

// embedPage vectorizes a page of summaries, using the provider's native
// batch endpoint when it has one.
func (s *Service) embedPage(ctx context.Context, texts []string) ([][]float32, error) {
	var (
		res domain.BatchEmbeddingResult
		err error
	)
	if batch, ok := s.embed.(domain.BatchEmbedder); ok {
		res, err = batch.BatchEmbed(ctx, texts)
	} else {
		res, err = domain.BatchFallback(ctx, s.embed, texts)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: batch returned %d embeddings for %d texts",
			domain.ErrProviderUnavailable, len(res.Embeddings), len(texts))
	}
	return res.Embeddings, nil
}

// prepareRecord validates one author record and resolves its affiliation.
// The returned advisor is complete except for its embedding.
func (s *Service) prepareRecord(
	ctx context.Context, rec openalex.AuthorRecord, instNames map[string]string,
) (preparedRecord, error) {
	id := openalex.TrimID(rec.ID)
	if id == "" {
		return preparedRecord{}, fmt.Errorf("record has no id: %w", domain.ErrValidation)
	}

	existing, err := s.advisors.GetByID(ctx, id)
	created := false
	switch {
	case errors.Is(err, domain.ErrNotFound):
		created = true
	case err != nil:
		return preparedRecord{}, fmt.Errorf("look up advisor: %w", err)
	}

	var instID, instName string
	if rec.LastKnownInstitution != nil && rec.LastKnownInstitution.ID != "" {
		instID = openalex.TrimID(rec.LastKnownInstitution.ID)
		instName, err = s.resolveInstitution(ctx, instID, rec.LastKnownInstitution.DisplayName, instNames)
		if err != nil {
			return preparedRecord{}, err
		}
	}

	concepts := make([]domain.Concept, len(rec.Concepts))
	for i, c := range rec.Concepts {
		concepts[i] = domain.Concept{DisplayName: c.DisplayName, Score: c.Score}
	}

	return preparedRecord{
		advisor: domain.Advisor{
			OpenAlexID:      id,
			Name:            rec.DisplayName,
			DisplayName:     rec.DisplayName,
			InstitutionID:   instID,
			WorksCount:      rec.WorksCount,
			CitedByCount:    rec.CitedByCount,
			HIndex:          rec.SummaryStats.HIndex,
			I10Index:        rec.SummaryStats.I10Index,
			Concepts:        concepts,
			ResearchSummary: buildSummary(rec, instName),
			ORCID:           rec.ORCID,
			HomepageURL:     rec.Homepage,
			CreatedAt:       existing.CreatedAt,
		},
		created: created,
	}, nil
}

// storeRecord upserts the advisor row and indexes its vector.
func (s *Service) storeRecord(ctx context.Context, adv domain.Advisor) error {
	if err := s.advisors.Upsert(ctx, adv); err != nil {
		return fmt.Errorf("upsert advisor: %w", err)
	}
	if err := s.idx.Add(adv.OpenAlexID, adv.Embedding); err != nil {
		return fmt.Errorf("index advisor: %w", err)
	}
	return nil
}

func (s *Service) countFailure(id string, err error, report *Report) {
	report.Failed++
	metrics.SyncRecordsTotal.WithLabelValues("failed").Inc()
	s.logger.Warn("failed to ingest author record",
		zap.String("record_id", id),
		zap.Error(err))
}

// resolveInstitution ensures the affiliation row exists and returns its
// display name. Detail fetches are cached per run.
func (s *Service) resolveInstitution(
	ctx context.Context, id, fallbackName string, cache map[string]string,
) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}

	inst, err := s.institutions.GetByID(ctx, id)
	if err == nil {
		cache[id] = inst.Name
		return inst.Name, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("look up institution: %w", err)
	}

	detail, err := s.feed.Institution(ctx, id)
	if err != nil {
		return "", fmt.Errorf("fetch institution detail: %w", err)
	}

	name := detail.DisplayName
	if name == "" {
		name = fallbackName
	}
	inst = domain.Institution{
		OpenAlexID:  id,
		Name:        name,
		DisplayName: detail.DisplayName,
		CountryCode: detail.CountryCode,
		Country:     detail.Country,
		City:        detail.Geo.City,
		Region:      detail.Geo.Region,
		Type:        detail.Type,
		HomepageURL: detail.HomepageURL,
		RORID:       detail.ROR,
		WorksCount:  detail.WorksCount,
	}
	if err := s.institutions.Create(ctx, inst); err != nil {
		return "", fmt.Errorf("create institution: %w", err)
	}

	cache[id] = name
	return name, nil
}

func (s *Service) persistIndex() error {
	if err := s.idx.Save(s.cfg.VectorPath, s.cfg.MappingPath); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	metrics.IndexVectors.WithLabelValues("total").Set(float64(s.idx.Size()))
	metrics.IndexVectors.WithLabelValues("live").Set(float64(s.idx.Live()))
	return nil
}

// buildSummary renders the deterministic embedding text for an author:
// name, top research areas, and affiliation, with absent parts omitted.
func buildSummary(rec openalex.AuthorRecord, institutionName string) string {
	var parts []string
	if rec.DisplayName != "" {
		parts = append(parts, rec.DisplayName)
	}

	if len(rec.Concepts) > 0 {
		limit := len(rec.Concepts)
		if limit > summaryConceptLimit {
			limit = summaryConceptLimit
		}
		names := make([]string, 0, limit)
		for _, c := range rec.Concepts[:limit] {
			if c.DisplayName != "" {
				names = append(names, c.DisplayName)
			}
		}
		if len(names) > 0 {
			parts = append(parts, "Research areas: "+strings.Join(names, ", "))
		}
	}

	if institutionName != "" {
		parts = append(parts, "Institution: "+institutionName)
	}
	return strings.Join(parts, ". ")
}
