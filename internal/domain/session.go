package domain

import "time"

// Status is the lifecycle state of a deployment session.
type Status string

// Deployment session states. The order PENDING -> UPLOAD_DONE ->
// INSTANCE_CREATED -> INITIALIZED is strict; FAILED is terminal from any
// state.
const (
	StatusPending         Status = "PENDING"
	StatusUploadDone      Status = "UPLOAD_DONE"
	StatusInstanceCreated Status = "INSTANCE_CREATED"
	StatusInitialized     Status = "INITIALIZED"
	StatusFailed          Status = "FAILED"
)

// Step names one transaction in the deployment pipeline.
type Step string

// Pipeline steps in execution order. StepInitialMint is optional and runs
// only when the deployment request asks for a starting balance.
const (
	StepUploadWasm     Step = "upload_wasm"
	StepCreateInstance Step = "create_instance"
	StepInitialize     Step = "initialize"
	StepInitialMint    Step = "initial_mint"
)

// StepRecord is one completed pipeline step with the transaction that
// completed it.
type StepRecord struct {
	Step        Step      `json:"step"`
	TxHash      string    `json:"tx_hash"`
	CompletedAt time.Time `json:"completed_at"`
}

// Session is the durable record of one token deployment. It carries
// enough state to resume after a crash: the last completed step, and the
// hash of any transaction that was submitted but whose outcome is
// unknown.
type Session struct {
	ID                string       `json:"id"`
	SourceAccount     string       `json:"source_account"`
	NetworkPassphrase string       `json:"network_passphrase"`
	WasmHash          string       `json:"wasm_hash,omitempty"`
	ContractID        string       `json:"contract_id,omitempty"`
	Status            Status       `json:"status"`
	Steps             []StepRecord `json:"steps"`

	// PendingStep and PendingTxHash are set while a submission is in
	// flight and cleared once its outcome is known. On resume they let
	// the coordinator query the transaction instead of re-submitting.
	PendingStep   Step   `json:"pending_step,omitempty"`
	PendingTxHash string `json:"pending_tx_hash,omitempty"`

	FailureStep   Step   `json:"failure_step,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the named step already finished in this
// session.
func (s *Session) Completed(step Step) bool {
	for _, rec := range s.Steps {
		if rec.Step == step {
			return true
		}
	}
	return false
}

// RecordStep appends a completed step and clears any pending submission.
func (s *Session) RecordStep(step Step, txHash string, at time.Time) {
	s.Steps = append(s.Steps, StepRecord{Step: step, TxHash: txHash, CompletedAt: at})
	s.PendingStep = ""
	s.PendingTxHash = ""
	s.UpdatedAt = at
}

// Terminal reports whether the session can make no further progress.
func (s *Session) Terminal() bool {
	return s.Status == StatusInitialized || s.Status == StatusFailed
}
