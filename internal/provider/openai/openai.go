// Package openai provides Embedder and Generator implementations backed by
// any OpenAI-compatible API (OpenAI, Ollama, DashScope, vLLM, ...).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/liliang-cn/askcorpus/internal/domain"
	"github.com/liliang-cn/askcorpus/internal/provider"
)

// Config configures the OpenAI-compatible clients.
type Config struct {
	BaseURL         string
	APIKey          string
	EmbeddingModel  string
	CompletionModel string
	Timeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.CompletionModel == "" {
		c.CompletionModel = "gpt-4o-mini"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// client is the shared HTTP plumbing for both capability clients.
type client struct {
	cfg  Config
	http *http.Client
}

func newClient(cfg Config) *client {
	cfg = cfg.withDefaults()
	return &client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// post sends a JSON request and decodes the JSON response into out.
// Rate-limit and server-side failures come back marked transient so the
// caller's retry policy attempts them again; 4xx rejections fail fast.
func (c *client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return provider.Transient(fmt.Errorf("%s: %w", path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return provider.Transient(fmt.Errorf("%s: %s", path, resp.Status))
	}
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s: %s", path, resp.Status, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.Transient(fmt.Errorf("%s: decode response: %w", path, err))
	}
	return nil
}

// Embedder implements provider.Embedder against the /embeddings endpoint.
type Embedder struct {
	*client
}

// NewEmbedder creates an embeddings client.
func NewEmbedder(cfg Config) *Embedder {
	return &Embedder{client: newClient(cfg)}
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string { return e.cfg.EmbeddingModel }

// Embed generates an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: e.cfg.EmbeddingModel, Input: texts}

	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.post(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, provider.Transient(fmt.Errorf("/embeddings: got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("/embeddings: embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Generator implements provider.Generator against the /chat/completions endpoint.
type Generator struct {
	*client
}

// NewGenerator creates a chat completion client.
func NewGenerator(cfg Config) *Generator {
	return &Generator{client: newClient(cfg)}
}

// Model returns the completion model identifier.
func (g *Generator) Model() string { return g.cfg.CompletionModel }

const systemPrompt = "You are a helpful assistant that answers questions about a document corpus. " +
	"When retrieved documents are provided, ground your answer in them and say so when they do not contain the answer."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete generates an answer to message given the conversation history and
// optional grounding context.
func (g *Generator) Complete(ctx context.Context, history []*domain.Message, grounding, message string) (string, error) {
	messages := make([]chatMessage, 0, len(history)+3)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if grounding != "" {
		messages = append(messages, chatMessage{Role: "system", Content: grounding})
	}
	messages = append(messages, chatMessage{Role: domain.RoleUser, Content: message})

	req := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{Model: g.cfg.CompletionModel, Messages: messages}

	var resp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := g.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", provider.Transient(fmt.Errorf("/chat/completions: no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}
