package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"stellar-token-lab/internal/token"
)

// SCType tags the dynamic type of an invocation argument.
type SCType uint8

// Supported argument types. Void stands for an absent optional value.
const (
	SCVoid SCType = iota
	SCBool
	SCU32
	SCI128
	SCString
	SCAddress
)

// SCVal is one positional invocation argument. Exactly the field selected
// by Type is meaningful.
type SCVal struct {
	Type    SCType
	Bool    bool
	U32     uint32
	I128    token.Amount
	Str     string
	Address string
}

// VoidVal returns the absent-optional value.
func VoidVal() SCVal { return SCVal{Type: SCVoid} }

// BoolVal wraps a bool argument.
func BoolVal(v bool) SCVal { return SCVal{Type: SCBool, Bool: v} }

// U32Val wraps a uint32 argument.
func U32Val(v uint32) SCVal { return SCVal{Type: SCU32, U32: v} }

// I128Val wraps a 128-bit amount argument.
func I128Val(v token.Amount) SCVal { return SCVal{Type: SCI128, I128: v} }

// StringVal wraps a string argument.
func StringVal(v string) SCVal { return SCVal{Type: SCString, Str: v} }

// AddressVal wraps an account or contract address argument.
func AddressVal(v string) SCVal { return SCVal{Type: SCAddress, Address: v} }

func (v SCVal) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(v.Type))
	switch v.Type {
	case SCVoid:
	case SCBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case SCU32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v.U32)
		buf.Write(b[:])
	case SCI128:
		b := v.I128.Bytes()
		buf.Write(b[:])
	case SCString:
		writeString(buf, v.Str)
	case SCAddress:
		writeString(buf, v.Address)
	}
}

func decodeSCVal(r *bytes.Reader) (SCVal, error) {
	t, err := r.ReadByte()
	if err != nil {
		return SCVal{}, fmt.Errorf("read scval type: %w", err)
	}

	v := SCVal{Type: SCType(t)}
	switch v.Type {
	case SCVoid:
	case SCBool:
		b, err := r.ReadByte()
		if err != nil {
			return SCVal{}, fmt.Errorf("read bool: %w", err)
		}
		v.Bool = b != 0
	case SCU32:
		var b [4]byte
		if _, err := readFull(r, b[:]); err != nil {
			return SCVal{}, fmt.Errorf("read u32: %w", err)
		}
		v.U32 = binary.BigEndian.Uint32(b[:])
	case SCI128:
		var b [16]byte
		if _, err := readFull(r, b[:]); err != nil {
			return SCVal{}, fmt.Errorf("read i128: %w", err)
		}
		v.I128 = token.AmountFromBytes(b)
	case SCString:
		s, err := readString(r)
		if err != nil {
			return SCVal{}, fmt.Errorf("read string: %w", err)
		}
		v.Str = s
	case SCAddress:
		s, err := readString(r)
		if err != nil {
			return SCVal{}, fmt.Errorf("read address: %w", err)
		}
		v.Address = s
	default:
		return SCVal{}, fmt.Errorf("unknown scval type %d", t)
	}
	return v, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(b[:])
	if n > uint32(r.Len()) {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	s := make([]byte, n)
	if _, err := readFull(r, s); err != nil {
		return "", err
	}
	return string(s), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}
