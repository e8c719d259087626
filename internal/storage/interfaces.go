package storage

import (
	"context"

	"stellar-token-lab/internal/domain"
)

// SessionStore provides access to deployment_sessions storage.
type SessionStore interface {
	// Insert adds a new session. Returns ErrDuplicateKey if the session ID exists.
	Insert(ctx context.Context, s *domain.Session) error

	// GetByID retrieves a session by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)

	// Update persists the current state of an existing session, including
	// newly completed steps. Returns ErrNotFound if the session does not exist.
	Update(ctx context.Context, s *domain.Session) error

	// ListUnfinished retrieves sessions that are neither initialized nor
	// failed, ordered by creation time ASC.
	ListUnfinished(ctx context.Context) ([]*domain.Session, error)
}

// SubmissionLogStore provides access to the append-only submission audit log.
type SubmissionLogStore interface {
	// Append records one submission attempt. Never updates existing rows.
	Append(ctx context.Context, r *domain.SubmissionRecord) error

	// GetBySessionID retrieves all attempts for a session, ordered by
	// submission time ASC.
	GetBySessionID(ctx context.Context, sessionID string) ([]*domain.SubmissionRecord, error)
}
