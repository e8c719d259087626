package signer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// AgentConfig configures the wallet agent connection.
type AgentConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultAgentConfig returns default wallet agent configuration. The
// read timeout is generous because a human may be approving requests.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      5 * time.Minute,
		WriteTimeout:     10 * time.Second,
	}
}

// AgentSigner forwards signing requests to a wallet agent over a
// WebSocket connection. Requests are correlated by ID so several may be
// in flight at once.
type AgentSigner struct {
	config AgentConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// pending maps request ID to the channel waiting for its response
	pending   map[uint64]chan agentResponse
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// agentRequest goes to the wallet agent.
type agentRequest struct {
	ID          uint64 `json:"id"`
	Type        string `json:"type"`
	Envelope    string `json:"envelope"` // base64 unsigned envelope
	Network     string `json:"network"`
	Description string `json:"description,omitempty"`
}

// agentResponse comes back from the wallet agent.
type agentResponse struct {
	ID             uint64 `json:"id"`
	Status         string `json:"status"` // "signed" or "rejected"
	SignedEnvelope string `json:"signedEnvelope,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// NewAgentSigner dials the wallet agent and starts the read and ping
// loops.
func NewAgentSigner(ctx context.Context, endpoint string, config *AgentConfig) (*AgentSigner, error) {
	cfg := DefaultAgentConfig()
	if config != nil {
		cfg = *config
	}

	s := &AgentSigner{
		config:  cfg,
		pending: make(map[uint64]chan agentResponse),
		done:    make(chan struct{}),
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet agent dial: %w", err)
	}
	s.conn = conn

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Compile-time interface check.
var _ Signer = (*AgentSigner)(nil)

// Sign implements Signer. Blocks until the agent answers, the context is
// cancelled, or the connection dies.
func (s *AgentSigner) Sign(ctx context.Context, req Request) ([]byte, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("wallet agent: client closed")
	}

	reqID := s.requestID.Add(1)
	msg := agentRequest{
		ID:          reqID,
		Type:        "sign",
		Envelope:    base64.StdEncoding.EncodeToString(req.Envelope),
		Network:     req.NetworkPassphrase,
		Description: req.Description,
	}

	respCh := make(chan agentResponse, 1)
	s.pendingMu.Lock()
	s.pending[reqID] = respCh
	s.pendingMu.Unlock()

	s.connMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	err := s.conn.WriteJSON(msg)
	s.connMu.Unlock()

	if err != nil {
		s.dropPending(reqID)
		return nil, fmt.Errorf("wallet agent write: %w", err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("wallet agent: connection closed")
		}
		switch resp.Status {
		case "signed":
			signed, err := base64.StdEncoding.DecodeString(resp.SignedEnvelope)
			if err != nil {
				return nil, fmt.Errorf("wallet agent: decode signed envelope: %w", err)
			}
			return signed, nil
		case "rejected":
			if resp.Reason != "" {
				return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Reason)
			}
			return nil, ErrRejected
		default:
			return nil, fmt.Errorf("wallet agent: unexpected status %q", resp.Status)
		}
	case <-ctx.Done():
		s.dropPending(reqID)
		return nil, ctx.Err()
	case <-s.done:
		return nil, fmt.Errorf("wallet agent: client closed")
	}
}

func (s *AgentSigner) dropPending(reqID uint64) {
	s.pendingMu.Lock()
	delete(s.pending, reqID)
	s.pendingMu.Unlock()
}

// Close shuts the connection down and fails all in-flight requests.
func (s *AgentSigner) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.conn.Close()
	s.connMu.Unlock()

	s.pendingMu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop reads agent responses and dispatches them to waiters.
func (s *AgentSigner) readLoop() {
	defer s.wg.Done()

	for !s.closed.Load() {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			// A dead connection fails every in-flight request; the
			// coordinator treats that as an indeterminate signing
			// outcome and decides whether to re-request.
			s.pendingMu.Lock()
			for id, ch := range s.pending {
				close(ch)
				delete(s.pending, id)
			}
			s.pendingMu.Unlock()

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		var resp agentResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			continue
		}

		s.pendingMu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.pendingMu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *AgentSigner) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			// A failed ping means the connection is dying; the read
			// loop will notice and fail the in-flight requests.
			_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			s.connMu.Unlock()
		}
	}
}
