package strkey

import (
	"crypto/ed25519"
	"strings"
	"testing"
)

func TestAccountRoundtrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	var key [32]byte
	copy(key[:], pub)

	address := EncodeAccount(key)
	if !strings.HasPrefix(address, "G") {
		t.Errorf("account address %q does not start with G", address)
	}

	got, err := DecodeAccount(address)
	if err != nil {
		t.Fatalf("DecodeAccount failed: %v", err)
	}
	if got != key {
		t.Errorf("roundtrip mismatch: got %x, want %x", got, key)
	}
}

func TestContractRoundtrip(t *testing.T) {
	var id [32]byte
	for i := range id {
		id[i] = byte(i * 7)
	}

	address := EncodeContract(id)
	if !strings.HasPrefix(address, "C") {
		t.Errorf("contract address %q does not start with C", address)
	}

	got, err := DecodeContract(address)
	if err != nil {
		t.Fatalf("DecodeContract failed: %v", err)
	}
	if got != id {
		t.Errorf("roundtrip mismatch: got %x, want %x", got, id)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	var key [32]byte
	address := EncodeAccount(key)

	// Flip one character in the payload region.
	corrupted := []byte(address)
	if corrupted[10] == 'A' {
		corrupted[10] = 'B'
	} else {
		corrupted[10] = 'A'
	}
	if _, err := DecodeAccount(string(corrupted)); err == nil {
		t.Error("expected checksum error for corrupted address")
	}

	// Wrong version byte: a contract address is not an account.
	contract := EncodeContract(key)
	if _, err := DecodeAccount(contract); err == nil {
		t.Error("expected version error decoding contract strkey as account")
	}

	// Truncated.
	if _, err := DecodeAccount(address[:20]); err == nil {
		t.Error("expected length error for truncated address")
	}
}

func TestIsValidAccount(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	var key [32]byte
	copy(key[:], pub)

	if !IsValidAccount(EncodeAccount(key)) {
		t.Error("valid ed25519 key rejected")
	}

	// All-0xFF bytes encode y = p + 18, which is non-canonical and must be
	// rejected even though the checksum is fine.
	var bad [32]byte
	for i := range bad {
		bad[i] = 0xFF
	}
	if IsValidAccount(EncodeAccount(bad)) {
		t.Error("non-canonical key accepted")
	}

	if IsValidAccount("not an address") {
		t.Error("garbage accepted")
	}
}
