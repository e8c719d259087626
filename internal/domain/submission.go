package domain

import "time"

// SubmissionRecord is one transaction submission attempt, kept as an
// append-only audit trail. Every attempt is recorded, including retries
// and failures, so a session's full submission history can be replayed
// after the fact.
type SubmissionRecord struct {
	SessionID   string    `json:"session_id"`
	Step        Step      `json:"step"`
	Attempt     int       `json:"attempt"`
	TxHash      string    `json:"tx_hash"`
	Fee         uint32    `json:"fee"`
	SeqNum      int64     `json:"seq_num"`
	Outcome     string    `json:"outcome"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submission outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeFailed        = "failed"
	OutcomeRejected      = "rejected"
	OutcomeIndeterminate = "indeterminate"
)
