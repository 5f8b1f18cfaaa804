package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/liliang-cn/askcorpus/internal/domain"
)

// formatVersion is bumped whenever the snapshot layout changes incompatibly.
const formatVersion = 1

// Manifest describes a persisted snapshot; Load validates it before the
// index serves any query.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	Model         string    `json:"model"`
	Dimension     int       `json:"dimension"`
	ChunkCount    int       `json:"chunk_count"`
	BuiltAt       time.Time `json:"built_at"`
}

type entry struct {
	Chunk  domain.Chunk `json:"chunk"`
	Vector []float32    `json:"vector"`
}

type snapshot struct {
	Manifest Manifest `json:"manifest"`
	Entries  []entry  `json:"entries"`
}

// Save persists the index to path as a single snapshot file, written to a
// temp file and renamed so a crash mid-write never leaves a partial index
// visible to readers.
func (ix *Index) Save(path string) error {
	snap := snapshot{
		Manifest: Manifest{
			FormatVersion: formatVersion,
			Model:         ix.model,
			Dimension:     ix.dimension,
			ChunkCount:    len(ix.chunks),
			BuiltAt:       ix.builtAt,
		},
		Entries: make([]entry, len(ix.chunks)),
	}
	for i := range ix.chunks {
		snap.Entries[i] = entry{Chunk: ix.chunks[i], Vector: ix.vectors[i]}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads a persisted snapshot and validates its manifest. Reloading a
// snapshot reproduces identical query results for identical queries.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrIndexLoad, path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: corrupt snapshot %s: %v", domain.ErrIndexLoad, path, err)
	}

	m := snap.Manifest
	if m.FormatVersion != formatVersion {
		return nil, fmt.Errorf("%w: snapshot format version %d, expected %d",
			domain.ErrIndexLoad, m.FormatVersion, formatVersion)
	}
	if m.Dimension <= 0 {
		return nil, fmt.Errorf("%w: manifest has no dimension tag", domain.ErrIndexLoad)
	}
	if m.ChunkCount != len(snap.Entries) {
		return nil, fmt.Errorf("%w: manifest claims %d chunks, snapshot has %d",
			domain.ErrIndexLoad, m.ChunkCount, len(snap.Entries))
	}

	ix := &Index{
		model:     m.Model,
		dimension: m.Dimension,
		builtAt:   m.BuiltAt,
		chunks:    make([]domain.Chunk, len(snap.Entries)),
		vectors:   make([][]float32, len(snap.Entries)),
	}
	for i, e := range snap.Entries {
		if len(e.Vector) != m.Dimension {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, manifest says %d",
				domain.ErrIndexLoad, i, len(e.Vector), m.Dimension)
		}
		ix.chunks[i] = e.Chunk
		ix.vectors[i] = e.Vector
	}
	return ix, nil
}
