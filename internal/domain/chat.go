package domain

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents a conversation owned by a single principal.
type Session struct {
	ID        string    `json:"id"`
	Owner     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn of a session's history.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Source is a citation recorded on an assistant message for traceability.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// MessageRequest is the request to send a chat message.
type MessageRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

// MessageResponse is the response to a chat message.
type MessageResponse struct {
	Response  string   `json:"response"`
	SessionID string   `json:"session_id"`
	Sources   []Source `json:"sources,omitempty"`
}

// SessionCreateResponse is the response to a session creation request.
type SessionCreateResponse struct {
	SessionID string `json:"session_id"`
}

// HistoryResponse is the response to a history request.
type HistoryResponse struct {
	SessionID string     `json:"session_id"`
	History   []*Message `json:"history"`
}

// SessionsListResponse is the response to a session listing request.
type SessionsListResponse struct {
	SessionIDs []string `json:"session_ids"`
}

// Stats represents system statistics.
type Stats struct {
	TotalSessions  int `json:"total_sessions"`
	TotalExchanges int `json:"total_exchanges"`
	IndexedChunks  int `json:"indexed_chunks"`
}
