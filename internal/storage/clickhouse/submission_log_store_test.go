package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/storage"
)

func TestSubmissionLogStore_AppendAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSubmissionLogStore(conn)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)

	records := []*domain.SubmissionRecord{
		{
			SessionID:   "sess-1",
			Step:        domain.StepUploadWasm,
			Attempt:     1,
			TxHash:      "tx-a",
			Fee:         30_000,
			SeqNum:      5,
			Outcome:     domain.OutcomeFailed,
			ErrorDetail: "txInsufficientFee",
			SubmittedAt: base,
		},
		{
			SessionID:   "sess-1",
			Step:        domain.StepUploadWasm,
			Attempt:     2,
			TxHash:      "tx-b",
			Fee:         45_000,
			SeqNum:      5,
			Outcome:     domain.OutcomeSuccess,
			SubmittedAt: base.Add(time.Second),
		},
		{
			SessionID:   "sess-2",
			Step:        domain.StepCreateInstance,
			Attempt:     1,
			TxHash:      "tx-c",
			Fee:         10_000,
			SeqNum:      1,
			Outcome:     domain.OutcomeSuccess,
			SubmittedAt: base,
		},
	}

	for _, r := range records {
		require.NoError(t, store.Append(ctx, r))
	}

	got, err := store.GetBySessionID(ctx, "sess-1")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Attempt)
	assert.Equal(t, "tx-a", got[0].TxHash)
	assert.Equal(t, domain.OutcomeFailed, got[0].Outcome)
	assert.Equal(t, "txInsufficientFee", got[0].ErrorDetail)
	assert.Equal(t, uint32(30_000), got[0].Fee)
	assert.Equal(t, int64(5), got[0].SeqNum)

	assert.Equal(t, 2, got[1].Attempt)
	assert.Equal(t, domain.OutcomeSuccess, got[1].Outcome)
	assert.Equal(t, uint32(45_000), got[1].Fee)
}

func TestSubmissionLogStore_EmptySession(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSubmissionLogStore(conn)
	ctx := context.Background()

	got, err := store.GetBySessionID(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubmissionLogStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSubmissionLogStore(conn)
	ctx := context.Background()

	err := store.Append(ctx, &domain.SubmissionRecord{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
