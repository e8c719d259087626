package deploy

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// NewSessionID generates a random 128-bit session identifier in base58.
// Base58 keeps IDs short and copy-paste safe for the --resume flag.
func NewSessionID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base58.Encode(buf[:]), nil
}
