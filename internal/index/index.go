// Package index implements the in-memory nearest-neighbor index over advisor
// embeddings: flat exact search by squared Euclidean distance, with a durable
// on-disk representation (vector file + JSON slot mapping).
package index

import (
	"sort"
	"sync"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// Entry is one (advisor id, vector) pair used by Rebuild.
type Entry struct {
	AdvisorID string
	Vector    []float32
}

// Flat is a flat exact-distance vector index. Slots are dense, zero-based and
// assigned monotonically; they are never reused within a process lifetime.
// Re-adding a known advisor tombstones its previous slot so Search only ever
// sees the latest embedding per advisor; Rebuild compacts tombstones away.
//
// Concurrent Search calls need no coordination; Add, Rebuild, Save and Load
// exclude each other and all readers.
type Flat struct {
	mu      sync.RWMutex
	dim     int
	vectors []float32 // packed, len == dim * len(ids)
	ids     []string  // slot -> advisor id
	dead    []bool    // slot -> tombstoned
	slotOf  map[string]int
	live    int
}

// New creates an empty index over vectors of the given dimension.
func New(dim int) *Flat {
	return &Flat{
		dim:    dim,
		slotOf: make(map[string]int),
	}
}

// Dim returns the vector dimension the index was created with.
func (f *Flat) Dim() int { return f.dim }

// Size returns the total number of slots, tombstoned ones included.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Live returns the number of searchable (non-tombstoned) slots.
func (f *Flat) Live() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.live
}

// Add appends the vector at the next free slot and records the slot mapping.
// If the advisor is already indexed its previous slot is tombstoned; the new
// slot becomes the only one Search can return for that advisor.
func (f *Flat) Add(advisorID string, vec []float32) error {
	if len(vec) != f.dim {
		return domain.NewDimensionError(f.dim, len(vec))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.slotOf[advisorID]; ok {
		if !f.dead[old] {
			f.dead[old] = true
			f.live--
		}
	}

	slot := len(f.ids)
	f.vectors = append(f.vectors, vec...)
	f.ids = append(f.ids, advisorID)
	f.dead = append(f.dead, false)
	f.slotOf[advisorID] = slot
	f.live++
	return nil
}

// Search returns up to topK (advisorID, score) candidates ordered by
// descending similarity. Score is 1/(1+d) for squared L2 distance d, so it is
// bounded in (0,1] and exactly 1.0 at distance zero. An empty index yields an
// empty result, not an error; topK is clamped to the live slot count.
func (f *Flat) Search(query []float32, topK int) ([]domain.Candidate, error) {
	if len(query) != f.dim {
		return nil, domain.NewDimensionError(f.dim, len(query))
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.live == 0 || topK <= 0 {
		return []domain.Candidate{}, nil
	}
	if topK > f.live {
		topK = f.live
	}

	candidates := make([]domain.Candidate, 0, f.live)
	for slot, id := range f.ids {
		if f.dead[slot] {
			continue
		}
		dist := f.squaredL2(slot, query)
		candidates = append(candidates, domain.Candidate{
			AdvisorID: id,
			Score:     1.0 / (1.0 + dist),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates[:topK], nil
}

// Rebuild atomically discards all slots and reconstructs from the supplied
// sequence: entry i lands in slot i. This is the compaction path for stale
// tombstones and bulk corrections.
func (f *Flat) Rebuild(entries []Entry) error {
	for i := range entries {
		if len(entries[i].Vector) != f.dim {
			return domain.NewDimensionError(f.dim, len(entries[i].Vector))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = make([]float32, 0, len(entries)*f.dim)
	f.ids = make([]string, 0, len(entries))
	f.dead = make([]bool, len(entries))
	f.slotOf = make(map[string]int, len(entries))
	f.live = 0

	for slot, e := range entries {
		f.vectors = append(f.vectors, e.Vector...)
		f.ids = append(f.ids, e.AdvisorID)
		if old, ok := f.slotOf[e.AdvisorID]; ok && !f.dead[old] {
			f.dead[old] = true
			f.live--
		}
		f.slotOf[e.AdvisorID] = slot
		f.live++
	}
	return nil
}

// squaredL2 computes the squared Euclidean distance between the vector at
// slot and the query. Caller holds at least a read lock.
func (f *Flat) squaredL2(slot int, query []float32) float64 {
	base := slot * f.dim
	var sum float64
	for i, q := range query {
		d := float64(f.vectors[base+i]) - float64(q)
		sum += d * d
	}
	return sum
}
