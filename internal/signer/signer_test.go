package signer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stellar-token-lab/internal/envelope"
	"stellar-token-lab/internal/strkey"
)

const testPassphrase = "Test SDF Network ; September 2015"

func testKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(bytes.NewReader(bytes.Repeat([]byte{0x42}, 64)))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func testEnvelope(t *testing.T, source string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.NewBuilder(testPassphrase).Build(envelope.UploadWasm{Wasm: []byte("code")}, source, 1)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestLocalSigner(t *testing.T) {
	pub, priv := testKey(t)
	s, err := NewLocalSigner(priv)
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}

	var raw [32]byte
	copy(raw[:], pub)
	if s.Address() != strkey.EncodeAccount(raw) {
		t.Errorf("Address() = %s, want %s", s.Address(), strkey.EncodeAccount(raw))
	}

	env := testEnvelope(t, s.Address())
	signed, err := s.Sign(context.Background(), Request{
		Envelope:          env.Bytes(),
		NetworkPassphrase: testPassphrase,
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	envBytes, sigs, err := envelope.DecodeSigned(signed)
	if err != nil {
		t.Fatalf("decode signed: %v", err)
	}
	if !bytes.Equal(envBytes, env.Bytes()) {
		t.Error("signed blob carries different envelope bytes")
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(sigs))
	}

	hash := envelope.HashRaw(testPassphrase, envBytes)
	if !ed25519.Verify(pub, hash[:], sigs[0]) {
		t.Error("signature does not verify against the envelope hash")
	}
}

func TestLocalSigner_BadKey(t *testing.T) {
	if _, err := NewLocalSigner(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestLocalSigner_ContextCancelled(t *testing.T) {
	_, priv := testKey(t)
	s, _ := NewLocalSigner(priv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Sign(ctx, Request{Envelope: []byte{1}}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// agentServer runs a fake wallet agent that answers each request via
// respond.
func agentServer(t *testing.T, respond func(req agentRequest) agentResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req agentRequest
			if err := json.Unmarshal(message, &req); err != nil {
				continue
			}
			if err := conn.WriteJSON(respond(req)); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestAgentSigner_Signs(t *testing.T) {
	_, priv := testKey(t)
	local, _ := NewLocalSigner(priv)
	env := testEnvelope(t, local.Address())

	server := agentServer(t, func(req agentRequest) agentResponse {
		raw, err := base64.StdEncoding.DecodeString(req.Envelope)
		if err != nil {
			t.Errorf("agent received bad base64: %v", err)
		}
		signed, err := local.Sign(context.Background(), Request{
			Envelope:          raw,
			NetworkPassphrase: req.Network,
		})
		if err != nil {
			t.Errorf("agent-side sign: %v", err)
		}
		return agentResponse{
			ID:             req.ID,
			Status:         "signed",
			SignedEnvelope: base64.StdEncoding.EncodeToString(signed),
		}
	})
	defer server.Close()

	s, err := NewAgentSigner(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewAgentSigner: %v", err)
	}
	defer s.Close()

	signed, err := s.Sign(context.Background(), Request{
		Envelope:          env.Bytes(),
		NetworkPassphrase: testPassphrase,
		Description:       "upload token code",
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	envBytes, sigs, err := envelope.DecodeSigned(signed)
	if err != nil {
		t.Fatalf("decode signed: %v", err)
	}
	if !bytes.Equal(envBytes, env.Bytes()) || len(sigs) != 1 {
		t.Error("agent returned a different envelope or signature count")
	}
}

func TestAgentSigner_Rejection(t *testing.T) {
	server := agentServer(t, func(req agentRequest) agentResponse {
		return agentResponse{ID: req.ID, Status: "rejected", Reason: "user declined"}
	})
	defer server.Close()

	s, err := NewAgentSigner(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewAgentSigner: %v", err)
	}
	defer s.Close()

	_, err = s.Sign(context.Background(), Request{Envelope: []byte{1}, NetworkPassphrase: testPassphrase})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "user declined") {
		t.Errorf("rejection reason dropped: %v", err)
	}
}

func TestAgentSigner_ContextCancel(t *testing.T) {
	// Agent that never answers.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	s, err := NewAgentSigner(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewAgentSigner: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := s.Sign(ctx, Request{Envelope: []byte{1}}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestAgentSigner_Closed(t *testing.T) {
	server := agentServer(t, func(req agentRequest) agentResponse {
		return agentResponse{ID: req.ID, Status: "signed", SignedEnvelope: ""}
	})
	defer server.Close()

	s, err := NewAgentSigner(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewAgentSigner: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := s.Sign(context.Background(), Request{Envelope: []byte{1}}); err == nil {
		t.Fatal("Sign on closed signer should fail")
	}
}
