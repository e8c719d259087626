// Package strkey encodes and decodes Stellar strkey identifiers: the
// checksummed base32 text form used for ed25519 account IDs (G...) and
// contract IDs (C...).
package strkey

import (
	"bytes"
	"encoding/base32"
	"fmt"

	"filippo.io/edwards25519"
)

// Version bytes for the supported strkey kinds.
const (
	VersionAccount  byte = 6 << 3 // 'G'
	VersionContract byte = 2 << 3 // 'C'
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeAccount renders a 32-byte ed25519 public key as a G... address.
func EncodeAccount(key [32]byte) string {
	return encode(VersionAccount, key)
}

// EncodeContract renders a 32-byte contract hash as a C... address.
func EncodeContract(id [32]byte) string {
	return encode(VersionContract, id)
}

func encode(version byte, payload [32]byte) string {
	raw := make([]byte, 0, 35)
	raw = append(raw, version)
	raw = append(raw, payload[:]...)
	crc := checksum(raw)
	raw = append(raw, byte(crc), byte(crc>>8))
	return b32.EncodeToString(raw)
}

// DecodeAccount parses a G... address into its raw public key.
func DecodeAccount(address string) ([32]byte, error) {
	return decode(VersionAccount, address)
}

// DecodeContract parses a C... address into its raw contract hash.
func DecodeContract(address string) ([32]byte, error) {
	return decode(VersionContract, address)
}

func decode(version byte, address string) ([32]byte, error) {
	var payload [32]byte

	raw, err := b32.DecodeString(address)
	if err != nil {
		return payload, fmt.Errorf("decode strkey %q: %w", address, err)
	}
	if len(raw) != 35 {
		return payload, fmt.Errorf("decode strkey %q: invalid length %d", address, len(raw))
	}
	if raw[0] != version {
		return payload, fmt.Errorf("decode strkey %q: version byte %#x, want %#x", address, raw[0], version)
	}
	want := checksum(raw[:33])
	got := uint16(raw[33]) | uint16(raw[34])<<8
	if got != want {
		return payload, fmt.Errorf("decode strkey %q: checksum mismatch", address)
	}

	copy(payload[:], raw[1:33])
	return payload, nil
}

// IsValidAccount reports whether the address is a well-formed G... strkey
// whose payload is a canonical point on the ed25519 curve. Addresses that
// pass the checksum but carry off-curve bytes are rejected; they can never
// sign anything.
func IsValidAccount(address string) bool {
	key, err := DecodeAccount(address)
	if err != nil {
		return false
	}
	point, err := new(edwards25519.Point).SetBytes(key[:])
	if err != nil {
		return false
	}
	// SetBytes tolerates non-canonical encodings (field element >= p);
	// requiring the round trip to reproduce the input closes that gap.
	return bytes.Equal(point.Bytes(), key[:])
}

// IsValidContract reports whether the address is a well-formed C... strkey.
func IsValidContract(address string) bool {
	_, err := DecodeContract(address)
	return err == nil
}

// checksum computes CRC16-XModem (poly 0x1021, init 0) over data.
func checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
