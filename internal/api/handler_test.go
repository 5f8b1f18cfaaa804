package api

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liliang-cn/askcorpus/internal/domain"
	"github.com/liliang-cn/askcorpus/internal/index"
	"github.com/liliang-cn/askcorpus/internal/provider"
	"github.com/liliang-cn/askcorpus/internal/repository"
	"github.com/liliang-cn/askcorpus/internal/service"
)

const embedDim = 16

func bowEmbed(text string, dim int) []float32 {
	v := make([]float32, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,!?")))
		v[int(h.Sum32())%dim]++
	}
	return v
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return bowEmbed(text, embedDim), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bowEmbed(t, embedDim)
	}
	return out, nil
}

type fakeGenerator struct{}

func (f *fakeGenerator) Model() string { return "fake-llm" }

func (f *fakeGenerator) Complete(ctx context.Context, history []*domain.Message, grounding, message string) (string, error) {
	if grounding != "" {
		return "grounded answer to: " + message, nil
	}
	return "answer to: " + message, nil
}

func testIndex(t *testing.T) *index.Index {
	t.Helper()
	chunks := []domain.Chunk{
		{ID: "kb.txt#00000", Source: "kb.txt", Ordinal: 0, Text: "X is a distributed vector database used for retrieval."},
	}
	ix, err := index.New("fake-embed", embedDim, chunks, [][]float32{bowEmbed(chunks[0].Text, embedDim)})
	require.NoError(t, err)
	return ix
}

func newTestRouter(t *testing.T, cfg RouterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := repository.NewSessionStore(db)

	handle := index.NewHandle(testIndex(t))
	retry := provider.RetryConfig{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	agent := service.NewAgentService(store, handle, &fakeEmbedder{}, &fakeGenerator{},
		service.NewHeuristicPolicy(), 4, retry, zap.NewNop())

	return SetupRouter(agent, handle, zap.NewNop(), cfg)
}

func defaultRouterConfig() RouterConfig {
	return RouterConfig{APIKeys: map[string]string{"test-key": "alice", "other-key": "bob"}}
}

func do(router *gin.Engine, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, router *gin.Engine, apiKey string) string {
	t.Helper()
	w := do(router, http.MethodPost, "/api/v1/sessions", apiKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp domain.SessionCreateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestHealth_Unauthenticated(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())

	w := do(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["indexed_chunks"])
	assert.Equal(t, "fake-embed", resp["index_model"])
}

func TestAuth_MissingAndInvalidKey(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())

	w := do(router, http.MethodPost, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/sessions", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_BearerToken(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateSession_FreshAndEmpty(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())

	id := createSession(t, router, "test-key")
	id2 := createSession(t, router, "test-key")
	assert.NotEqual(t, id, id2)

	w := do(router, http.MethodGet, "/api/v1/sessions/"+id+"/history", "test-key", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var hist domain.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Equal(t, id, hist.SessionID)
	assert.Empty(t, hist.History)
}

func TestSendMessage_FullFlow(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())
	id := createSession(t, router, "test-key")

	w := do(router, http.MethodPost, "/api/v1/messages", "test-key",
		domain.MessageRequest{Message: "What is X?", SessionID: id})
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.SessionID)
	assert.Contains(t, resp.Response, "grounded")
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "kb.txt#00000", resp.Sources[0].ChunkID)

	w = do(router, http.MethodGet, "/api/v1/sessions/"+id+"/history", "test-key", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var hist domain.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.History, 2)
	assert.Equal(t, domain.RoleUser, hist.History[0].Role)
	assert.Equal(t, domain.RoleAssistant, hist.History[1].Role)
}

func TestSendMessage_UnknownSession(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())

	w := do(router, http.MethodPost, "/api/v1/messages", "test-key",
		domain.MessageRequest{Message: "What is X?", SessionID: "no-such-session"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessage_MalformedBody(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())

	w := do(router, http.MethodPost, "/api/v1/messages", "test-key", gin.H{"message": "no session id"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_ScopedToPrincipal(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())
	id := createSession(t, router, "test-key")

	// bob cannot list or read alice's session
	w := do(router, http.MethodGet, "/api/v1/sessions", "other-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list domain.SessionsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.SessionIDs)

	w = do(router, http.MethodGet, "/api/v1/sessions/"+id+"/history", "other-key", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/v1/sessions", "test-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{id}, list.SessionIDs)
}

func TestStats(t *testing.T) {
	router := newTestRouter(t, defaultRouterConfig())
	id := createSession(t, router, "test-key")

	w := do(router, http.MethodPost, "/api/v1/messages", "test-key",
		domain.MessageRequest{Message: "What is X?", SessionID: id})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/stats", "test-key", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats domain.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.TotalExchanges)
	assert.Equal(t, 1, stats.IndexedChunks)
}

func TestRateLimit_ExhaustedBurst(t *testing.T) {
	cfg := defaultRouterConfig()
	cfg.RateLimitEnabled = true
	cfg.RequestsPerSecond = 0 // no refill, only the burst allowance
	cfg.Burst = 2
	router := newTestRouter(t, cfg)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/sessions", "test-key", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/sessions", "test-key", nil).Code)

	w := do(router, http.MethodGet, "/api/v1/sessions", "test-key", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Limits are per principal, so a different key still gets through.
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/sessions", "other-key", nil).Code)
}
