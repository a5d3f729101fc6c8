package index

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

const dim = 4

func vec(vals ...float32) []float32 {
	v := make([]float32, dim)
	copy(v, vals)
	return v
}

func TestAdd_DimensionMismatch(t *testing.T) {
	idx := New(dim)

	err := idx.Add("A1", []float32{1, 2})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	var dimErr *domain.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatal("expected DimensionError")
	}
	if dimErr.Want != dim || dimErr.Got != 2 {
		t.Errorf("expected want=%d got=2, have want=%d got=%d", dim, dimErr.Want, dimErr.Got)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	idx := New(dim)
	if _, err := idx.Search([]float32{1}, 5); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := New(dim)

	results, err := idx.Search(vec(0.1, 0.1, 0.1, 0.1), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d candidates", len(results))
	}
}

func TestSearch_SingleEntityRoundTrip(t *testing.T) {
	idx := New(dim)
	v := vec(0.5, -0.25, 1, 0)

	if err := idx.Add("E1", v); err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := idx.Search(v, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].AdvisorID != "E1" {
		t.Errorf("expected E1, got %s", results[0].AdvisorID)
	}
	if results[0].Score != 1.0 {
		t.Errorf("expected score exactly 1.0 at distance 0, got %v", results[0].Score)
	}
}

func TestSearch_ScoreOrdering(t *testing.T) {
	idx := New(dim)
	mustAdd(t, idx, "far", vec(10, 10, 10, 10))
	mustAdd(t, idx, "near", vec(1, 0, 0, 0))
	mustAdd(t, idx, "mid", vec(3, 3, 0, 0))

	results, err := idx.Search(vec(1, 0, 0, 0), 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	want := []string{"near", "mid", "far"}
	for i, id := range want {
		if results[i].AdvisorID != id {
			t.Errorf("rank %d: expected %s, got %s", i, id, results[i].AdvisorID)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at rank %d", i)
		}
	}
	for _, r := range results {
		if r.Score <= 0 || r.Score > 1 {
			t.Errorf("score %v outside (0,1]", r.Score)
		}
	}
}

func TestSearch_TopKClamp(t *testing.T) {
	idx := New(dim)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		mustAdd(t, idx, id, vec(float32(len(id))))
	}

	results, err := idx.Search(vec(0), 1000)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("expected exactly 5 results, got %d", len(results))
	}
}

func TestAdd_TombstonesPreviousSlot(t *testing.T) {
	idx := New(dim)
	mustAdd(t, idx, "E1", vec(0, 0, 0, 0))
	mustAdd(t, idx, "E2", vec(5, 5, 5, 5))
	// Re-sync E1 with a new embedding far from the old one.
	mustAdd(t, idx, "E1", vec(9, 9, 9, 9))

	if idx.Size() != 3 {
		t.Errorf("expected 3 slots, got %d", idx.Size())
	}
	if idx.Live() != 2 {
		t.Errorf("expected 2 live slots, got %d", idx.Live())
	}

	// The old E1 vector must not be reachable: querying at the old location
	// may not return E1 with a perfect score.
	results, err := idx.Search(vec(0, 0, 0, 0), 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.AdvisorID == "E1" && r.Score == 1.0 {
			t.Error("stale E1 slot still reachable after re-add")
		}
	}
}

func TestRebuild_PositionalSlots(t *testing.T) {
	idx := New(dim)
	mustAdd(t, idx, "old", vec(1, 1, 1, 1))

	err := idx.Rebuild([]Entry{
		{AdvisorID: "E1", Vector: vec(1, 0, 0, 0)},
		{AdvisorID: "E2", Vector: vec(0, 1, 0, 0)},
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if idx.Size() != 2 || idx.Live() != 2 {
		t.Errorf("expected 2 slots after rebuild, got size=%d live=%d", idx.Size(), idx.Live())
	}

	results, err := idx.Search(vec(1, 0, 0, 0), 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results[0].AdvisorID != "E1" {
		t.Errorf("expected E1, got %s", results[0].AdvisorID)
	}
}

func TestRebuild_DimensionMismatch(t *testing.T) {
	idx := New(dim)
	err := idx.Rebuild([]Entry{{AdvisorID: "E1", Vector: []float32{1}}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "advisors.vec")
	mapPath := filepath.Join(dir, "advisors.map.json")

	idx := New(dim)
	if err := idx.Rebuild([]Entry{
		{AdvisorID: "E1", Vector: vec(0.25, -1, 3, 0.5)},
		{AdvisorID: "E2", Vector: vec(1, 2, 3, 4)},
		{AdvisorID: "E3", Vector: vec(-0.5, 0, 0, 0)},
	}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := idx.Save(vecPath, mapPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	query := vec(0.3, -0.9, 2.5, 0.4)
	before, err := idx.Search(query, 3)
	if err != nil {
		t.Fatalf("search before: %v", err)
	}

	loaded := New(dim)
	if err := loaded.Load(vecPath, mapPath); err != nil {
		t.Fatalf("load: %v", err)
	}
	after, err := loaded.Search(query, 3)
	if err != nil {
		t.Fatalf("search after: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count differs: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].AdvisorID != after[i].AdvisorID {
			t.Errorf("rank %d: %s vs %s", i, before[i].AdvisorID, after[i].AdvisorID)
		}
		if math.Abs(before[i].Score-after[i].Score) > 1e-9 {
			t.Errorf("rank %d: score %v vs %v", i, before[i].Score, after[i].Score)
		}
	}
}

func TestLoad_TombstonesFromDuplicateMapping(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "advisors.vec")
	mapPath := filepath.Join(dir, "advisors.map.json")

	idx := New(dim)
	mustAdd(t, idx, "E1", vec(0, 0, 0, 0))
	mustAdd(t, idx, "E1", vec(9, 9, 9, 9)) // re-synced
	if err := idx.Save(vecPath, mapPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New(dim)
	if err := loaded.Load(vecPath, mapPath); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Size() != 2 {
		t.Errorf("expected 2 slots, got %d", loaded.Size())
	}
	if loaded.Live() != 1 {
		t.Errorf("expected 1 live slot after load, got %d", loaded.Live())
	}

	results, err := loaded.Search(vec(9, 9, 9, 9), 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results[0].AdvisorID != "E1" || results[0].Score != 1.0 {
		t.Errorf("expected latest E1 vector to win, got %+v", results[0])
	}
}

func TestLoad_MappingCountMismatch(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "advisors.vec")
	mapPath := filepath.Join(dir, "advisors.map.json")

	idx := New(dim)
	mustAdd(t, idx, "E1", vec(1, 2, 3, 4))
	mustAdd(t, idx, "E2", vec(4, 3, 2, 1))
	if err := idx.Save(vecPath, mapPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Shrink the mapping so its cardinality disagrees with the vector count.
	writeFile(t, mapPath, `{"0":"E1"}`)

	loaded := New(dim)
	err := loaded.Load(vecPath, mapPath)
	if !errors.Is(err, domain.ErrIndexCorruption) {
		t.Fatalf("expected ErrIndexCorruption, got %v", err)
	}
}

func TestLoad_WrongDimension(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "advisors.vec")
	mapPath := filepath.Join(dir, "advisors.map.json")

	idx := New(dim)
	mustAdd(t, idx, "E1", vec(1, 2, 3, 4))
	if err := idx.Save(vecPath, mapPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New(dim + 1)
	err := loaded.Load(vecPath, mapPath)
	if !errors.Is(err, domain.ErrIndexCorruption) {
		t.Fatalf("expected ErrIndexCorruption, got %v", err)
	}
}

func TestLoadOrEmpty_MissingSnapshot(t *testing.T) {
	dir := t.TempDir()

	idx := LoadOrEmpty(dim, filepath.Join(dir, "none.vec"), filepath.Join(dir, "none.json"), zap.NewNop())
	if idx.Size() != 0 {
		t.Fatalf("expected empty index, got %d vectors", idx.Size())
	}
	mustAdd(t, idx, "E1", vec(1, 0, 0, 0))
}

func TestLoadOrEmpty_CorruptSnapshotFallsBack(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "advisors.vec")
	mapPath := filepath.Join(dir, "advisors.map.json")

	idx := New(dim)
	mustAdd(t, idx, "E1", vec(1, 2, 3, 4))
	mustAdd(t, idx, "E2", vec(4, 3, 2, 1))
	if err := idx.Save(vecPath, mapPath); err != nil {
		t.Fatalf("save: %v", err)
	}
	writeFile(t, mapPath, `{"0":"E1"}`)

	// A corrupt pair must not take the process down; serving resumes
	// against an empty index.
	loaded := LoadOrEmpty(dim, vecPath, mapPath, zap.NewNop())
	if loaded.Size() != 0 || loaded.Live() != 0 {
		t.Fatalf("expected empty fallback index, got size=%d live=%d", loaded.Size(), loaded.Live())
	}
	mustAdd(t, loaded, "E3", vec(0, 1, 0, 0))
}

func TestLoadOrEmpty_ValidSnapshot(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "advisors.vec")
	mapPath := filepath.Join(dir, "advisors.map.json")

	idx := New(dim)
	mustAdd(t, idx, "E1", vec(1, 2, 3, 4))
	if err := idx.Save(vecPath, mapPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := LoadOrEmpty(dim, vecPath, mapPath, zap.NewNop())
	if loaded.Size() != 1 || loaded.Live() != 1 {
		t.Fatalf("expected loaded snapshot, got size=%d live=%d", loaded.Size(), loaded.Live())
	}
}

func mustAdd(t *testing.T, idx *Flat, id string, v []float32) {
	t.Helper()
	if err := idx.Add(id, v); err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := writeAtomic(path, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
