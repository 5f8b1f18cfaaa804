package provider

import (
	"context"

	"github.com/liliang-cn/askcorpus/internal/domain"
)

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call,
	// preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier.
	Model() string
}

// Generator produces a completion grounded in retrieved context.
type Generator interface {
	// Complete generates an answer to message given the conversation history
	// and optional grounding context (empty string when retrieval was skipped).
	Complete(ctx context.Context, history []*domain.Message, grounding, message string) (string, error)

	// Model returns the completion model identifier.
	Model() string
}
