// Package stellar talks to a Soroban RPC endpoint: transaction
// submission, result polling, and the account/ledger queries the
// deployment coordinator needs.
package stellar

import "context"

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus string

// Transaction states as reported by getTransaction.
const (
	TxStatusPending  TxStatus = "PENDING"
	TxStatusSuccess  TxStatus = "SUCCESS"
	TxStatusFailed   TxStatus = "FAILED"
	TxStatusNotFound TxStatus = "NOT_FOUND"
)

// SubmitResult is the synchronous acknowledgement from sendTransaction.
// A PENDING status means the transaction was accepted into the queue and
// its final outcome must be polled via GetTransaction.
type SubmitResult struct {
	TxHash    string
	Status    TxStatus
	ErrorCode string
}

// TxResult is the polled outcome of a transaction.
type TxResult struct {
	TxHash      string
	Status      TxStatus
	Ledger      uint32
	ErrorCode   string
	ErrorDetail string
	// ReturnValue carries the invocation result for successful contract
	// calls, base64 encoded.
	ReturnValue string
}

// Client is the RPC surface the deployment coordinator depends on.
type Client interface {
	// SubmitTransaction sends a signed envelope blob to the network.
	// A nil error with a FAILED status means a definitive rejection;
	// network errors mean the outcome is unknown.
	SubmitTransaction(ctx context.Context, signedEnvelope []byte) (*SubmitResult, error)

	// GetTransaction polls the outcome of a previously submitted
	// transaction. NOT_FOUND means the network has no record of it.
	GetTransaction(ctx context.Context, txHash string) (*TxResult, error)

	// GetLatestLedger returns the current ledger sequence number.
	GetLatestLedger(ctx context.Context) (uint32, error)

	// GetAccountSequence returns the current sequence number of an
	// account. The next transaction must use this value plus one.
	GetAccountSequence(ctx context.Context, account string) (int64, error)
}
