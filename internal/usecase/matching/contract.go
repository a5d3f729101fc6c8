package matching

import (
	"context"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// ProfileRepository reads profiles and persists derived embeddings.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	SaveEmbedding(ctx context.Context, id string, embedding []float32) error
}

// AdvisorRepository reads advisor rows for candidate hydration and
// filter-only listings.
type AdvisorRepository interface {
	ListFiltered(ctx context.Context, ids []string, filters *domain.Filters, skip, limit int) ([]domain.Advisor, error)
}

// Index runs nearest-neighbor queries over the in-memory vector index.
type Index interface {
	Search(query []float32, topK int) ([]domain.Candidate, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
