package memory

import (
	"context"
	"sort"
	"sync"

	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/storage"
)

// SubmissionLogStore is an in-memory implementation of
// storage.SubmissionLogStore.
type SubmissionLogStore struct {
	mu      sync.RWMutex
	records []*domain.SubmissionRecord
}

// NewSubmissionLogStore creates a new in-memory submission log store.
func NewSubmissionLogStore() *SubmissionLogStore {
	return &SubmissionLogStore{}
}

// Compile-time interface check.
var _ storage.SubmissionLogStore = (*SubmissionLogStore)(nil)

// Append records one submission attempt.
func (s *SubmissionLogStore) Append(_ context.Context, r *domain.SubmissionRecord) error {
	if r == nil || r.SessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *r
	s.records = append(s.records, &recordCopy)
	return nil
}

// GetBySessionID retrieves all attempts for a session, ordered by
// submission time ASC.
func (s *SubmissionLogStore) GetBySessionID(_ context.Context, sessionID string) ([]*domain.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SubmissionRecord
	for _, r := range s.records {
		if r.SessionID == sessionID {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SubmittedAt.Before(result[j].SubmittedAt)
	})

	return result, nil
}
