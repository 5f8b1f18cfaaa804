package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liliang-cn/askcorpus/internal/domain"
)

// SessionStore is the process-wide registry of conversation sessions and the
// single writer of their history. Every session belongs to exactly one
// principal; reads and writes are owner-scoped, so a session reached with the
// wrong owner behaves as if it does not exist.
//
// Writes to one session are serialized through a per-session mutex while
// requests against different sessions proceed independently. The mutex map
// is never evicted: sessions are never deleted and session IDs (UUIDs) are
// never reused, so an entry stays valid for the process lifetime.
type SessionStore struct {
	db *DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionStore creates a session store backed by db.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex for a session, creating it on first use.
func (s *SessionStore) lock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Create creates a new session with an empty history for the given owner.
func (s *SessionStore) Create(ctx context.Context, owner string) (*domain.Session, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:        uuid.New().String(),
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, session.ID, session.Owner, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// Get retrieves a session by ID, scoped to its owner.
func (s *SessionStore) Get(ctx context.Context, owner, id string) (*domain.Session, error) {
	session := &domain.Session{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner, created_at, updated_at
		FROM sessions WHERE id = ? AND owner = ?
	`, id, owner).Scan(&session.ID, &session.Owner, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return session, nil
}

// List returns the IDs of all sessions owned by owner, oldest first.
func (s *SessionStore) List(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sessions WHERE owner = ? ORDER BY rowid ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// History returns the ordered turns of a session.
func (s *SessionStore) History(ctx context.Context, owner, id string) ([]*domain.Message, error) {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, sources, created_at
		FROM messages WHERE session_id = ?
		ORDER BY rowid ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		message := &domain.Message{}
		var sourcesJSON sql.NullString

		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &sourcesJSON, &message.CreatedAt); err != nil {
			return nil, err
		}

		if sourcesJSON.Valid && sourcesJSON.String != "" {
			json.Unmarshal([]byte(sourcesJSON.String), &message.Sources)
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// AppendExchange appends a user turn and its assistant reply as a single
// logical update: both land or neither does. This is the only operation that
// mutates history, and the only one that takes the per-session lock.
func (s *SessionStore) AppendExchange(ctx context.Context, owner, sessionID string, user, assistant *domain.Message) error {
	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists string
	err = tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = ? AND owner = ?`,
		sessionID, owner).Scan(&exists)
	if err == sql.ErrNoRows {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}

	now := time.Now().UTC()
	for _, m := range []*domain.Message{user, assistant} {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.SessionID = sessionID
		m.CreatedAt = now

		sourcesJSON, _ := json.Marshal(m.Sources)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, sources, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, m.ID, m.SessionID, m.Role, m.Content, string(sourcesJSON), m.CreatedAt)
		if err != nil {
			return fmt.Errorf("append %s turn: %w", m.Role, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}

// CountSessions returns the total number of sessions across all owners.
func (s *SessionStore) CountSessions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

// CountExchanges returns the total number of user messages across all sessions.
func (s *SessionStore) CountExchanges(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE role = ?`, domain.RoleUser).Scan(&count)
	return count, err
}
