package memory

import (
	"context"
	"sort"
	"sync"

	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/storage"
)

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Session // keyed by session ID
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		data: make(map[string]*domain.Session),
	}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Insert adds a new session. Returns ErrDuplicateKey if the session ID exists.
func (s *SessionStore) Insert(_ context.Context, sess *domain.Session) error {
	if sess == nil || sess.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sess.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[sess.ID] = copySession(sess)
	return nil
}

// GetByID retrieves a session by its ID. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.data[sessionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySession(sess), nil
}

// Update persists the current state of an existing session.
func (s *SessionStore) Update(_ context.Context, sess *domain.Session) error {
	if sess == nil || sess.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sess.ID]; !exists {
		return storage.ErrNotFound
	}

	s.data[sess.ID] = copySession(sess)
	return nil
}

// ListUnfinished retrieves non-terminal sessions ordered by creation time ASC.
func (s *SessionStore) ListUnfinished(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Session
	for _, sess := range s.data {
		if !sess.Terminal() {
			result = append(result, copySession(sess))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// copySession deep-copies a session to prevent external mutation.
func copySession(sess *domain.Session) *domain.Session {
	clone := *sess
	clone.Steps = append([]domain.StepRecord(nil), sess.Steps...)
	return &clone
}
