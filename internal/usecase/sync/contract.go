package sync

import (
	"context"

	"github.com/scholarmatch/scholarmatch/internal/domain"
	"github.com/scholarmatch/scholarmatch/internal/index"
	"github.com/scholarmatch/scholarmatch/internal/transport/openalex"
)

// Feed pages through author records for an institution.
type Feed interface {
	AuthorsPage(ctx context.Context, institutionROR, cursor string) (openalex.AuthorsPage, error)
	Institution(ctx context.Context, id string) (openalex.InstitutionDetail, error)
}

// AdvisorRepository reads and upserts advisor rows.
type AdvisorRepository interface {
	GetByID(ctx context.Context, id string) (domain.Advisor, error)
	Upsert(ctx context.Context, adv domain.Advisor) error
	ListEmbedded(ctx context.Context) ([]domain.Advisor, error)
}

// InstitutionRepository reads and creates institution rows.
type InstitutionRepository interface {
	GetByID(ctx context.Context, id string) (domain.Institution, error)
	Create(ctx context.Context, inst domain.Institution) error
}

// Index receives vectors during ingestion and persists to disk after a run.
type Index interface {
	Add(advisorID string, vec []float32) error
	Rebuild(entries []index.Entry) error
	Save(vectorPath, mappingPath string) error
	Size() int
	Live() int
}

// Embedder vectorizes advisor summaries. Implementations that also satisfy
// domain.BatchEmbedder get one provider call per page instead of one per
// record.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
