package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/askcorpus/internal/domain"
	"github.com/liliang-cn/askcorpus/internal/index"
	"github.com/liliang-cn/askcorpus/internal/provider"
	"github.com/liliang-cn/askcorpus/internal/repository"
)

// AgentService runs the per-message decision loop: load the session history,
// decide whether to retrieve, optionally query the index, generate an answer
// and commit both turns as one atomic append. Any failure before the commit
// leaves the session history untouched.
//
// The service never holds a session lock while waiting on the embedding or
// completion capability; the lock is taken only inside the store's append.
type AgentService struct {
	sessions  *repository.SessionStore
	index     *index.Handle
	embedder  provider.Embedder
	generator provider.Generator
	policy    RetrievalPolicy
	topK      int
	retry     provider.RetryConfig
	logger    *zap.Logger
}

// NewAgentService creates the retrieval agent. topK bounds how many chunks a
// retrieval pulls into the grounding context.
func NewAgentService(
	sessions *repository.SessionStore,
	handle *index.Handle,
	embedder provider.Embedder,
	generator provider.Generator,
	policy RetrievalPolicy,
	topK int,
	retry provider.RetryConfig,
	logger *zap.Logger,
) *AgentService {
	if topK <= 0 {
		topK = 7
	}
	if policy == nil {
		policy = NewHeuristicPolicy()
	}
	return &AgentService{
		sessions:  sessions,
		index:     handle,
		embedder:  embedder,
		generator: generator,
		policy:    policy,
		topK:      topK,
		retry:     retry,
		logger:    logger,
	}
}

// CreateSession creates a fresh, empty session for the principal.
func (s *AgentService) CreateSession(ctx context.Context, owner string) (*domain.Session, error) {
	return s.sessions.Create(ctx, owner)
}

// History returns a session's ordered turns.
func (s *AgentService) History(ctx context.Context, owner, sessionID string) ([]*domain.Message, error) {
	return s.sessions.History(ctx, owner, sessionID)
}

// ListSessions returns the principal's session IDs.
func (s *AgentService) ListSessions(ctx context.Context, owner string) ([]string, error) {
	return s.sessions.List(ctx, owner)
}

// Stats returns orchestrator-wide totals.
func (s *AgentService) Stats(ctx context.Context) (*domain.Stats, error) {
	sessions, err := s.sessions.CountSessions(ctx)
	if err != nil {
		return nil, err
	}
	exchanges, err := s.sessions.CountExchanges(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Stats{
		TotalSessions:  sessions,
		TotalExchanges: exchanges,
		IndexedChunks:  s.index.Current().Size(),
	}, nil
}

// SendMessage processes one user message against a session and returns the
// grounded answer.
func (s *AgentService) SendMessage(ctx context.Context, owner, sessionID, message string) (*domain.MessageResponse, error) {
	// Load
	history, err := s.sessions.History(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}

	// Decide. Readers keep the snapshot they dereferenced here even if a
	// rebuild swaps the handle mid-request. An empty index always skips.
	snapshot := s.index.Current()
	retrieve := snapshot.Size() > 0 && s.policy.NeedsRetrieval(message, history)

	// Retrieve
	var grounding string
	var sources []domain.Source
	if retrieve {
		grounding, sources, err = s.retrieve(ctx, snapshot, message)
		if err != nil {
			return nil, err
		}
	}

	// Generate
	answer, err := provider.Retry(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.generator.Complete(ctx, history, grounding, message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	// Commit
	userMsg := &domain.Message{Role: domain.RoleUser, Content: message}
	assistantMsg := &domain.Message{Role: domain.RoleAssistant, Content: answer, Sources: sources}
	if err := s.sessions.AppendExchange(ctx, owner, sessionID, userMsg, assistantMsg); err != nil {
		return nil, err
	}

	s.logger.Debug("message processed",
		zap.String("session_id", sessionID),
		zap.Bool("retrieved", retrieve),
		zap.Int("sources", len(sources)),
	)

	return &domain.MessageResponse{
		Response:  answer,
		SessionID: sessionID,
		Sources:   sources,
	}, nil
}

// retrieve embeds the message, queries the snapshot and assembles the
// grounding context in similarity-ranked order.
func (s *AgentService) retrieve(ctx context.Context, snapshot *index.Index, message string) (string, []domain.Source, error) {
	vec, err := provider.Retry(ctx, s.retry, func(ctx context.Context) ([]float32, error) {
		return s.embedder.Embed(ctx, message)
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: embed query: %v", domain.ErrRetrieval, err)
	}

	results, err := snapshot.Query(vec, s.topK)
	if err != nil {
		// Dimension mismatches keep their own error kind.
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("Retrieved documents:\n")
	sources := make([]domain.Source, 0, len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "===== Document %d =====\n%s\n", i, r.Chunk.Text)
		sources = append(sources, domain.Source{
			ChunkID: r.Chunk.ID,
			Source:  r.Chunk.Source,
			Score:   r.Score,
		})
	}
	return b.String(), sources, nil
}
