package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/observability"
	"stellar-token-lab/internal/storage"
)

// SubmissionLogStore implements storage.SubmissionLogStore using
// ClickHouse. The log is append-only by construction: MergeTree inserts
// only, no updates or deletes.
type SubmissionLogStore struct {
	conn *Conn
}

// NewSubmissionLogStore creates a new SubmissionLogStore.
func NewSubmissionLogStore(conn *Conn) *SubmissionLogStore {
	return &SubmissionLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SubmissionLogStore = (*SubmissionLogStore)(nil)

// Append records one submission attempt.
func (s *SubmissionLogStore) Append(ctx context.Context, r *domain.SubmissionRecord) (err error) {
	if r == nil || r.SessionID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "append_submission", time.Since(start).Seconds(), err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO submission_log (
			session_id, step, attempt, tx_hash, fee, seq_num, outcome, error_detail, submitted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.SessionID, string(r.Step), uint32(r.Attempt), r.TxHash,
		r.Fee, r.SeqNum, r.Outcome, r.ErrorDetail, r.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySessionID retrieves all attempts for a session, ordered by
// submission time ASC.
func (s *SubmissionLogStore) GetBySessionID(ctx context.Context, sessionID string) (records []*domain.SubmissionRecord, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "get_submissions", time.Since(start).Seconds(), err) }()

	query := `
		SELECT session_id, step, attempt, tx_hash, fee, seq_num, outcome, error_detail, submitted_at
		FROM submission_log
		WHERE session_id = ?
		ORDER BY submitted_at ASC, attempt ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query by session id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.SubmissionRecord
		var step string
		var attempt uint32
		var submittedAt time.Time

		err := rows.Scan(
			&r.SessionID, &step, &attempt, &r.TxHash,
			&r.Fee, &r.SeqNum, &r.Outcome, &r.ErrorDetail, &submittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}

		r.Step = domain.Step(step)
		r.Attempt = int(attempt)
		r.SubmittedAt = submittedAt
		records = append(records, &r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission rows: %w", err)
	}

	return records, nil
}
