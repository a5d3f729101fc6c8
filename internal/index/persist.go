package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/scholarmatch/scholarmatch/internal/domain"
)

// Vector file layout: little-endian uint32 dimension, uint64 slot count,
// then count*dim packed float32 values. The mapping file is a JSON object
// keyed by decimal slot position: {"0": "A123", "1": "A456", ...}.
// Both files are always written and read as a pair.

// Save writes a snapshot of the index to the vector and mapping paths.
// Writes go through a temp file plus rename so a crash never leaves a
// half-written pair behind.
func (f *Flat) Save(vectorPath, mappingPath string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(vectorPath), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(mappingPath), 0o755); err != nil {
		return fmt.Errorf("create mapping dir: %w", err)
	}

	vec := make([]byte, 12+len(f.vectors)*4)
	binary.LittleEndian.PutUint32(vec[0:], uint32(f.dim))
	binary.LittleEndian.PutUint64(vec[4:], uint64(len(f.ids)))
	for i, v := range f.vectors {
		binary.LittleEndian.PutUint32(vec[12+i*4:], math.Float32bits(v))
	}

	mapping := make(map[string]string, len(f.ids))
	for slot, id := range f.ids {
		mapping[strconv.Itoa(slot)] = id
	}
	mapData, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal slot mapping: %w", err)
	}

	if err := writeAtomic(vectorPath, vec); err != nil {
		return fmt.Errorf("write vector file: %w", err)
	}
	if err := writeAtomic(mappingPath, mapData); err != nil {
		return fmt.Errorf("write mapping file: %w", err)
	}
	return nil
}

// Load replaces the index contents from a previously saved pair of files.
// A mapping whose key count disagrees with the vector count, or a vector
// file written for a different dimension, fails with ErrIndexCorruption and
// leaves the index untouched.
func (f *Flat) Load(vectorPath, mappingPath string) error {
	vec, err := os.ReadFile(filepath.Clean(vectorPath))
	if err != nil {
		return fmt.Errorf("read vector file: %w", err)
	}
	mapData, err := os.ReadFile(filepath.Clean(mappingPath))
	if err != nil {
		return fmt.Errorf("read mapping file: %w", err)
	}

	if len(vec) < 12 {
		return fmt.Errorf("%w: vector file truncated (%d bytes)", domain.ErrIndexCorruption, len(vec))
	}
	dim := int(binary.LittleEndian.Uint32(vec[0:]))
	count := int(binary.LittleEndian.Uint64(vec[4:]))
	if dim != f.dim {
		return fmt.Errorf("%w: vector file dimension %d, index expects %d", domain.ErrIndexCorruption, dim, f.dim)
	}
	if len(vec) != 12+count*dim*4 {
		return fmt.Errorf("%w: vector file size %d does not fit %d vectors of dim %d",
			domain.ErrIndexCorruption, len(vec), count, dim)
	}

	var mapping map[string]string
	if err := json.Unmarshal(mapData, &mapping); err != nil {
		return fmt.Errorf("%w: parse mapping file: %v", domain.ErrIndexCorruption, err)
	}
	if len(mapping) != count {
		return fmt.Errorf("%w: mapping has %d entries, vector file has %d vectors",
			domain.ErrIndexCorruption, len(mapping), count)
	}

	ids := make([]string, count)
	for slot := 0; slot < count; slot++ {
		id, ok := mapping[strconv.Itoa(slot)]
		if !ok {
			return fmt.Errorf("%w: mapping missing slot %d", domain.ErrIndexCorruption, slot)
		}
		ids[slot] = id
	}

	vectors := make([]float32, count*dim)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(vec[12+i*4:]))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.vectors = vectors
	f.ids = ids
	f.dead = make([]bool, count)
	f.slotOf = make(map[string]int, count)
	f.live = 0

	// Re-derive the reverse map: the highest slot per advisor wins, earlier
	// slots for the same advisor become tombstones. Compatible with files
	// written before tombstoning existed.
	for slot, id := range ids {
		if old, ok := f.slotOf[id]; ok && !f.dead[old] {
			f.dead[old] = true
			f.live--
		}
		f.slotOf[id] = slot
		f.live++
	}
	return nil
}

// LoadOrEmpty restores a snapshot into a new index. A missing snapshot is
// normal on first start; an unreadable or corrupt one is logged at error
// severity and the process keeps serving with an empty index until a
// rebuild regenerates the files.
func LoadOrEmpty(dim int, vectorPath, mappingPath string, logger *zap.Logger) *Flat {
	f := New(dim)
	err := f.Load(vectorPath, mappingPath)
	switch {
	case err == nil:
		return f
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no index snapshot found, starting empty",
			zap.String("vector_path", vectorPath))
	default:
		logger.Error("failed to load vector index, starting empty",
			zap.String("vector_path", vectorPath),
			zap.Error(err))
	}
	return New(dim)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return nil
}
