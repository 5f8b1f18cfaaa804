package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/askcorpus/internal/chunker"
	"github.com/liliang-cn/askcorpus/internal/domain"
	"github.com/liliang-cn/askcorpus/internal/provider"
)

// Builder turns a corpus of .txt documents into a persisted index: chunk,
// embed in batches, assemble, save atomically. A failed build leaves any
// previously persisted index untouched and serving.
type Builder struct {
	chunker   *chunker.Chunker
	embedder  provider.Embedder
	batchSize int
	retry     provider.RetryConfig
	logger    *zap.Logger
}

// NewBuilder creates an index builder. batchSize bounds how many chunk texts
// go to the embedder per call.
func NewBuilder(ch *chunker.Chunker, embedder provider.Embedder, batchSize int, retry provider.RetryConfig, logger *zap.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Builder{
		chunker:   ch,
		embedder:  embedder,
		batchSize: batchSize,
		retry:     retry,
		logger:    logger,
	}
}

// Build enumerates corpusDir, chunks every .txt document, embeds the chunks
// and returns a fresh index.
func (b *Builder) Build(ctx context.Context, corpusDir string) (*Index, error) {
	chunks, err := b.chunkCorpus(corpusDir)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	dimension := len(vectors[0])
	ix, err := New(b.embedder.Model(), dimension, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexBuild, err)
	}

	b.logger.Info("index built",
		zap.Int("chunks", ix.Size()),
		zap.Int("dimension", dimension),
		zap.String("model", ix.Model()),
	)
	return ix, nil
}

// BuildAndSave builds a fresh index and persists it to path.
func (b *Builder) BuildAndSave(ctx context.Context, corpusDir, path string) (*Index, error) {
	ix, err := b.Build(ctx, corpusDir)
	if err != nil {
		return nil, err
	}
	if err := ix.Save(path); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexBuild, err)
	}
	b.logger.Info("index saved", zap.String("path", path))
	return ix, nil
}

// chunkCorpus reads every .txt file in corpusDir (sorted, so builds are
// deterministic) and splits it. Chunks with identical text are indexed once.
func (b *Builder) chunkCorpus(corpusDir string) ([]domain.Chunk, error) {
	entries, err := os.ReadDir(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read corpus dir: %v", domain.ErrIndexBuild, err)
	}

	var chunks []domain.Chunk
	seen := make(map[string]bool)
	documents := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(corpusDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrIndexBuild, e.Name(), err)
		}
		documents++
		doc := domain.Document{Source: e.Name(), Content: string(data)}
		for _, c := range b.chunker.Split(doc) {
			if seen[c.Text] {
				continue
			}
			seen[c.Text] = true
			chunks = append(chunks, c)
		}
	}

	if documents == 0 {
		return nil, fmt.Errorf("%w: no .txt documents in %s", domain.ErrIndexBuild, corpusDir)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: corpus in %s produced no chunks", domain.ErrIndexBuild, corpusDir)
	}

	b.logger.Info("corpus chunked",
		zap.Int("documents", documents),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// embedAll embeds texts in batches through the retry policy and validates
// that every vector has the same dimension.
func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch := texts[start:end]

		embedded, err := provider.Retry(ctx, b.retry, func(ctx context.Context) ([][]float32, error) {
			return b.embedder.EmbedBatch(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: embed batch at %d: %v", domain.ErrIndexBuild, start, err)
		}
		if len(embedded) != len(batch) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrIndexBuild, len(embedded), len(batch))
		}
		vectors = append(vectors, embedded...)
	}

	dimension := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("%w: inconsistent embedding dimensions (%d and %d at %d)",
				domain.ErrIndexBuild, dimension, len(v), i)
		}
	}
	return vectors, nil
}
