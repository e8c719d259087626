package stellar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"stellar-token-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Soroban RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Only transport-level failures retry; RPC errors return immediately.
func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// sendTransactionResult is the raw RPC response for sendTransaction.
type sendTransactionResult struct {
	Hash      string `json:"hash"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorResultCode"`
}

// SubmitTransaction sends a signed envelope blob to the network.
func (c *HTTPClient) SubmitTransaction(ctx context.Context, signedEnvelope []byte) (*SubmitResult, error) {
	params := map[string]interface{}{
		"transaction": base64.StdEncoding.EncodeToString(signedEnvelope),
	}

	var result sendTransactionResult
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return nil, err
	}

	res := &SubmitResult{
		TxHash:    result.Hash,
		ErrorCode: result.ErrorCode,
	}
	switch result.Status {
	case "PENDING":
		res.Status = TxStatusPending
	case "ERROR", "FAILED":
		res.Status = TxStatusFailed
	case "SUCCESS":
		res.Status = TxStatusSuccess
	default:
		return nil, fmt.Errorf("sendTransaction: unexpected status %q", result.Status)
	}
	return res, nil
}

// getTransactionResult is the raw RPC response for getTransaction.
type getTransactionResult struct {
	Status      string `json:"status"`
	Ledger      uint32 `json:"ledger"`
	ErrorCode   string `json:"errorResultCode"`
	ErrorDetail string `json:"errorResultDetail"`
	ReturnValue string `json:"returnValue"`
}

// GetTransaction polls the outcome of a submitted transaction.
func (c *HTTPClient) GetTransaction(ctx context.Context, txHash string) (*TxResult, error) {
	params := map[string]interface{}{
		"hash": txHash,
	}

	var result getTransactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}

	res := &TxResult{
		TxHash:      txHash,
		Ledger:      result.Ledger,
		ErrorCode:   result.ErrorCode,
		ErrorDetail: result.ErrorDetail,
		ReturnValue: result.ReturnValue,
	}
	switch result.Status {
	case "SUCCESS":
		res.Status = TxStatusSuccess
	case "FAILED":
		res.Status = TxStatusFailed
	case "NOT_FOUND", "":
		res.Status = TxStatusNotFound
	default:
		res.Status = TxStatusPending
	}
	return res, nil
}

// getLatestLedgerResult is the raw RPC response for getLatestLedger.
type getLatestLedgerResult struct {
	Sequence uint32 `json:"sequence"`
}

// GetLatestLedger returns the current ledger sequence.
func (c *HTTPClient) GetLatestLedger(ctx context.Context) (uint32, error) {
	var result getLatestLedgerResult
	if err := c.call(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, err
	}
	return result.Sequence, nil
}

// getAccountResult is the raw RPC response for getAccount.
type getAccountResult struct {
	Sequence string `json:"sequence"`
}

// GetAccountSequence returns the current sequence number of an account.
func (c *HTTPClient) GetAccountSequence(ctx context.Context, account string) (int64, error) {
	params := map[string]interface{}{
		"account": account,
	}

	var result getAccountResult
	if err := c.call(ctx, "getAccount", params, &result); err != nil {
		return 0, err
	}

	var seq int64
	if _, err := fmt.Sscanf(result.Sequence, "%d", &seq); err != nil {
		return 0, fmt.Errorf("getAccount: parse sequence %q: %w", result.Sequence, err)
	}
	return seq, nil
}

// ClassifyResult maps a definitive failed result to an error the
// coordinator can act on.
func ClassifyResult(errorCode, detail string) *SubmitError {
	return &SubmitError{Class: classify(errorCode), Detail: detail}
}
