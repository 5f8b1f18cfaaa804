// Package index implements the persisted nearest-neighbor structure over
// chunk embeddings: brute-force cosine similarity over L2-normalized vectors,
// an atomically swappable snapshot handle, and JSON persistence with a
// build manifest.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/liliang-cn/askcorpus/internal/domain"
)

// Index is an immutable snapshot of (chunk, vector) pairs. It is built once
// (by the Builder or by Load) and only read afterwards, so it is safe to
// share across any number of concurrent readers without locking.
type Index struct {
	model     string
	dimension int
	builtAt   time.Time
	chunks    []domain.Chunk
	vectors   [][]float32 // L2-normalized, position-aligned with chunks
}

// New creates an index over the given pairs. Vectors are copied and
// normalized; chunks and vectors are aligned by position.
func New(model string, dimension int, chunks []domain.Chunk, vectors [][]float32) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors))
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, index has %d",
				domain.ErrDimensionMismatch, i, len(v), dimension)
		}
		normalized[i] = normalize(v)
	}
	return &Index{
		model:     model,
		dimension: dimension,
		builtAt:   time.Now().UTC(),
		chunks:    append([]domain.Chunk(nil), chunks...),
		vectors:   normalized,
	}, nil
}

// Empty returns an index with no chunks. Queries against it return no
// results, which makes every retrieval decision resolve to "skip".
func Empty() *Index {
	return &Index{builtAt: time.Now().UTC()}
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int { return len(ix.chunks) }

// Dimension returns the embedding dimension the index was built with.
func (ix *Index) Dimension() int { return ix.dimension }

// Model returns the embedding model identifier recorded at build time.
func (ix *Index) Model() string { return ix.model }

// BuiltAt returns the build timestamp.
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// Query returns the k chunks most similar to vec, scores descending, ties
// broken by ascending chunk ID. k is clamped to the number of stored chunks.
func (ix *Index) Query(vec []float32, k int) ([]domain.ScoredChunk, error) {
	if len(ix.chunks) == 0 {
		return nil, nil
	}
	if len(vec) != ix.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d",
			domain.ErrDimensionMismatch, len(vec), ix.dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}

	q := normalize(vec)
	results := make([]domain.ScoredChunk, len(ix.chunks))
	for i, v := range ix.vectors {
		results[i] = domain.ScoredChunk{Chunk: ix.chunks[i], Score: dot(q, v)}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	return results[:k], nil
}

// Handle is the single current-snapshot pointer all readers dereference.
// A rebuild constructs a complete new Index off to the side and swaps it in;
// in-flight readers keep the snapshot they started with.
type Handle struct {
	current atomic.Pointer[Index]
}

// NewHandle creates a handle pointing at ix.
func NewHandle(ix *Index) *Handle {
	h := &Handle{}
	h.current.Store(ix)
	return h
}

// Current returns the current snapshot.
func (h *Handle) Current() *Index { return h.current.Load() }

// Swap atomically replaces the current snapshot.
func (h *Handle) Swap(ix *Index) { h.current.Store(ix) }

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
