package signer

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"stellar-token-lab/internal/envelope"
	"stellar-token-lab/internal/strkey"
)

// LocalSigner signs with an in-process ed25519 key. Intended for sandbox
// runs and tests; production deployments use a wallet agent.
type LocalSigner struct {
	priv ed25519.PrivateKey
}

// NewLocalSigner wraps an ed25519 private key.
func NewLocalSigner(priv ed25519.PrivateKey) (*LocalSigner, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("local signer: bad private key length %d", len(priv))
	}
	return &LocalSigner{priv: priv}, nil
}

// Compile-time interface check.
var _ Signer = (*LocalSigner)(nil)

// Address returns the G... account address of the signing key.
func (s *LocalSigner) Address() string {
	pub := s.priv.Public().(ed25519.PublicKey)
	var raw [32]byte
	copy(raw[:], pub)
	return strkey.EncodeAccount(raw)
}

// Sign implements Signer. The signature covers the network-bound
// envelope hash, not the raw bytes, so it cannot be replayed on another
// network.
func (s *LocalSigner) Sign(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash := envelope.HashRaw(req.NetworkPassphrase, req.Envelope)
	sig := ed25519.Sign(s.priv, hash[:])
	return envelope.EncodeSigned(req.Envelope, [][]byte{sig}), nil
}
