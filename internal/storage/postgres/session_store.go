package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/observability"
	"stellar-token-lab/internal/storage"
)

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Insert adds a new session. Returns ErrDuplicateKey if the session ID exists.
func (s *SessionStore) Insert(ctx context.Context, sess *domain.Session) (err error) {
	if sess == nil || sess.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "insert_session", time.Since(start).Seconds(), err) }()

	query := `
		INSERT INTO deployment_sessions (
			session_id, source_account, network_passphrase, wasm_hash, contract_id,
			status, pending_step, pending_tx_hash, failure_step, failure_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		sess.ID,
		sess.SourceAccount,
		sess.NetworkPassphrase,
		sess.WasmHash,
		sess.ContractID,
		string(sess.Status),
		string(sess.PendingStep),
		sess.PendingTxHash,
		string(sess.FailureStep),
		sess.FailureReason,
		sess.CreatedAt,
		sess.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its ID. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByID(ctx context.Context, sessionID string) (sess *domain.Session, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "get_session", time.Since(start).Seconds(), err) }()

	query := `
		SELECT session_id, source_account, network_passphrase, wasm_hash, contract_id,
		       status, pending_step, pending_tx_hash, failure_step, failure_reason,
		       created_at, updated_at
		FROM deployment_sessions
		WHERE session_id = $1
	`

	row := s.pool.QueryRow(ctx, query, sessionID)
	sess, err = scanSession(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	if err := s.loadSteps(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Update persists the current state of an existing session. The session
// row and its steps are written in one transaction so a crash never
// leaves a step recorded against stale session state.
func (s *SessionStore) Update(ctx context.Context, sess *domain.Session) (err error) {
	if sess == nil || sess.ID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "update_session", time.Since(start).Seconds(), err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update session: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE deployment_sessions
		SET source_account = $2, network_passphrase = $3, wasm_hash = $4,
		    contract_id = $5, status = $6, pending_step = $7, pending_tx_hash = $8,
		    failure_step = $9, failure_reason = $10, updated_at = $11
		WHERE session_id = $1
	`

	tag, err := tx.Exec(ctx, query,
		sess.ID,
		sess.SourceAccount,
		sess.NetworkPassphrase,
		sess.WasmHash,
		sess.ContractID,
		string(sess.Status),
		string(sess.PendingStep),
		sess.PendingTxHash,
		string(sess.FailureStep),
		sess.FailureReason,
		sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	for _, rec := range sess.Steps {
		_, err := tx.Exec(ctx, `
			INSERT INTO deployment_steps (session_id, step, tx_hash, completed_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, step) DO NOTHING
		`, sess.ID, string(rec.Step), rec.TxHash, rec.CompletedAt)
		if err != nil {
			return fmt.Errorf("upsert session step: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update session: %w", err)
	}
	return nil
}

// ListUnfinished retrieves non-terminal sessions ordered by creation time ASC.
func (s *SessionStore) ListUnfinished(ctx context.Context) (sessions []*domain.Session, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "list_unfinished", time.Since(start).Seconds(), err) }()

	query := `
		SELECT session_id, source_account, network_passphrase, wasm_hash, contract_id,
		       status, pending_step, pending_tx_hash, failure_step, failure_reason,
		       created_at, updated_at
		FROM deployment_sessions
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at ASC, session_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.StatusInitialized), string(domain.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("list unfinished sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	for _, sess := range sessions {
		if err := s.loadSteps(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// loadSteps fills a session's completed steps in execution order.
func (s *SessionStore) loadSteps(ctx context.Context, sess *domain.Session) error {
	rows, err := s.pool.Query(ctx, `
		SELECT step, tx_hash, completed_at
		FROM deployment_steps
		WHERE session_id = $1
		ORDER BY completed_at ASC
	`, sess.ID)
	if err != nil {
		return fmt.Errorf("load session steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.StepRecord
		var stepStr string
		if err := rows.Scan(&stepStr, &rec.TxHash, &rec.CompletedAt); err != nil {
			return fmt.Errorf("scan step row: %w", err)
		}
		rec.Step = domain.Step(stepStr)
		sess.Steps = append(sess.Steps, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate step rows: %w", err)
	}
	return nil
}

// scanSession scans a single row into a Session without its steps.
func scanSession(row pgx.Row) (*domain.Session, error) {
	var sess domain.Session
	var status, pendingStep, failureStep string

	err := row.Scan(
		&sess.ID,
		&sess.SourceAccount,
		&sess.NetworkPassphrase,
		&sess.WasmHash,
		&sess.ContractID,
		&status,
		&pendingStep,
		&sess.PendingTxHash,
		&failureStep,
		&sess.FailureReason,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = domain.Status(status)
	sess.PendingStep = domain.Step(pendingStep)
	sess.FailureStep = domain.Step(failureStep)
	return &sess, nil
}
