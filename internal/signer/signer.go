// Package signer produces signatures over transaction envelopes. The
// coordinator only depends on the Signer interface; implementations range
// from an in-process ed25519 key to a remote wallet agent reached over
// WebSocket.
package signer

import (
	"context"
	"errors"
)

// ErrRejected means the signer declined to sign. A rejection is a
// deliberate decision, never retried.
var ErrRejected = errors.New("signing request rejected")

// Request carries everything a signer needs to produce a decision: the
// raw unsigned envelope, the network it targets, and a human-readable
// description for interactive signers.
type Request struct {
	Envelope          []byte
	NetworkPassphrase string
	Description       string
}

// Signer signs envelope bytes and returns the complete signed envelope
// blob ready for submission.
type Signer interface {
	Sign(ctx context.Context, req Request) ([]byte, error)
}
