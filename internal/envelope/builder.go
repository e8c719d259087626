// Package envelope builds unsigned transaction envelopes for the token
// deployment lifecycle: WASM upload, contract-instance creation, and
// contract invocation. The builder never touches a network; it is a pure
// function of (operation, source account, sequence number, network
// passphrase) to deterministic envelope bytes.
package envelope

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"stellar-token-lab/internal/strkey"
)

// Wire format version for envelope and signed-envelope encodings.
const wireVersion = 1

// Operation type tags on the wire.
const (
	opUploadWasm     uint8 = 1
	opCreateInstance uint8 = 2
	opInvoke         uint8 = 3
)

// Operation is one of UploadWasm, CreateInstance, or Invoke.
type Operation interface {
	// Type names the operation for logs and error reporting.
	Type() string

	opTag() uint8
	encodeBody(buf *bytes.Buffer)
}

// UploadWasm publishes raw contract bytecode to the ledger.
type UploadWasm struct {
	Wasm []byte
}

// Type implements Operation.
func (UploadWasm) Type() string { return "upload_wasm" }

func (UploadWasm) opTag() uint8 { return opUploadWasm }

func (op UploadWasm) encodeBody(buf *bytes.Buffer) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(op.Wasm)))
	buf.Write(b[:])
	buf.Write(op.Wasm)
}

// Hash returns the content hash the ledger assigns to the uploaded code.
func (op UploadWasm) Hash() [32]byte {
	return sha256.Sum256(op.Wasm)
}

// CreateInstance instantiates a contract from previously uploaded code.
// The salt makes the resulting contract ID deterministic and caller
// chosen: re-submitting with the same source account, code hash, and salt
// reproduces the same contract identity, which is exactly what makes a
// retried creation idempotent rather than an error.
type CreateInstance struct {
	WasmHash [32]byte
	Salt     [32]byte
}

// Type implements Operation.
func (CreateInstance) Type() string { return "create_instance" }

func (CreateInstance) opTag() uint8 { return opCreateInstance }

func (op CreateInstance) encodeBody(buf *bytes.Buffer) {
	buf.Write(op.WasmHash[:])
	buf.Write(op.Salt[:])
}

// Invoke calls a named contract entry point with positional typed
// arguments. Initialization is an Invoke of "initialize".
type Invoke struct {
	ContractID string
	Function   string
	Args       []SCVal
}

// Type implements Operation.
func (Invoke) Type() string { return "invoke" }

func (Invoke) opTag() uint8 { return opInvoke }

func (op Invoke) encodeBody(buf *bytes.Buffer) {
	writeString(buf, op.ContractID)
	writeString(buf, op.Function)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(op.Args)))
	buf.Write(b[:])
	for _, arg := range op.Args {
		arg.encode(buf)
	}
}

// Envelope is an unsigned transaction bound to a source account, sequence
// number, and fee. The network passphrase participates in the hash (the
// signature base) but not in the envelope bytes, so an envelope signed for
// one network cannot be replayed on another.
type Envelope struct {
	Source            string
	SeqNum            int64
	Fee               uint32
	NetworkPassphrase string
	Op                Operation
}

// Builder constructs envelopes bound to one network.
type Builder struct {
	networkPassphrase string
}

// NewBuilder creates a Builder for the given network passphrase.
func NewBuilder(networkPassphrase string) *Builder {
	return &Builder{networkPassphrase: networkPassphrase}
}

// Build produces an unsigned envelope for op with a deterministic,
// deliberately over-estimated fee. Fee misestimation downward causes
// deterministic on-chain rejection, so the builder always rounds up.
func (b *Builder) Build(op Operation, source string, seqNum int64) (*Envelope, error) {
	if !strkey.IsValidAccount(source) {
		return nil, fmt.Errorf("build %s envelope: invalid source account %q", op.Type(), source)
	}
	if seqNum < 0 {
		return nil, fmt.Errorf("build %s envelope: negative sequence number %d", op.Type(), seqNum)
	}
	if inv, ok := op.(Invoke); ok {
		if !strkey.IsValidContract(inv.ContractID) {
			return nil, fmt.Errorf("build invoke envelope: invalid contract id %q", inv.ContractID)
		}
		if inv.Function == "" {
			return nil, fmt.Errorf("build invoke envelope: empty function name")
		}
	}
	if up, ok := op.(UploadWasm); ok && len(up.Wasm) == 0 {
		return nil, fmt.Errorf("build upload envelope: empty wasm payload")
	}

	return &Envelope{
		Source:            source,
		SeqNum:            seqNum,
		Fee:               ComputeFee(op),
		NetworkPassphrase: b.networkPassphrase,
		Op:                op,
	}, nil
}

// WithFee returns a copy of the envelope with the fee replaced. Used by
// the coordinator to bump fees on insufficient-fee retries.
func (e *Envelope) WithFee(fee uint32) *Envelope {
	clone := *e
	clone.Fee = fee
	return &clone
}

// Bytes returns the deterministic unsigned-envelope encoding.
func (e *Envelope) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte(wireVersion)
	writeString(&buf, e.Source)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(e.SeqNum))
	buf.Write(b[:])
	var fb [4]byte
	binary.BigEndian.PutUint32(fb[:], e.Fee)
	buf.Write(fb[:])
	buf.WriteByte(e.Op.opTag())
	e.Op.encodeBody(&buf)
	return buf.Bytes()
}

// Hash returns the signature base: SHA-256(networkID || envelope bytes),
// where networkID = SHA-256(passphrase).
func (e *Envelope) Hash() [32]byte {
	return HashRaw(e.NetworkPassphrase, e.Bytes())
}

// HashRaw computes the signature base for raw envelope bytes. Signers use
// this without needing to decode the envelope.
func HashRaw(networkPassphrase string, envBytes []byte) [32]byte {
	networkID := sha256.Sum256([]byte(networkPassphrase))
	h := sha256.New()
	h.Write(networkID[:])
	h.Write(envBytes)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Base64 returns the envelope bytes in base64 transport encoding.
func (e *Envelope) Base64() string {
	return base64.StdEncoding.EncodeToString(e.Bytes())
}

// Decode parses unsigned-envelope bytes back into an Envelope. The
// network passphrase is not part of the wire form and must be supplied.
func Decode(data []byte, networkPassphrase string) (*Envelope, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if version != wireVersion {
		return nil, fmt.Errorf("decode envelope: unsupported version %d", version)
	}

	e := &Envelope{NetworkPassphrase: networkPassphrase}
	if e.Source, err = readString(r); err != nil {
		return nil, fmt.Errorf("decode envelope source: %w", err)
	}
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return nil, fmt.Errorf("decode envelope seqnum: %w", err)
	}
	e.SeqNum = int64(binary.BigEndian.Uint64(b[:]))
	var fb [4]byte
	if _, err := readFull(r, fb[:]); err != nil {
		return nil, fmt.Errorf("decode envelope fee: %w", err)
	}
	e.Fee = binary.BigEndian.Uint32(fb[:])

	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decode envelope op tag: %w", err)
	}
	switch tag {
	case opUploadWasm:
		var lb [4]byte
		if _, err := readFull(r, lb[:]); err != nil {
			return nil, fmt.Errorf("decode upload length: %w", err)
		}
		n := binary.BigEndian.Uint32(lb[:])
		if n > uint32(r.Len()) {
			return nil, fmt.Errorf("decode upload: wasm length %d exceeds remaining %d", n, r.Len())
		}
		wasm := make([]byte, n)
		if _, err := readFull(r, wasm); err != nil {
			return nil, fmt.Errorf("decode upload wasm: %w", err)
		}
		e.Op = UploadWasm{Wasm: wasm}
	case opCreateInstance:
		var op CreateInstance
		if _, err := readFull(r, op.WasmHash[:]); err != nil {
			return nil, fmt.Errorf("decode create wasm hash: %w", err)
		}
		if _, err := readFull(r, op.Salt[:]); err != nil {
			return nil, fmt.Errorf("decode create salt: %w", err)
		}
		e.Op = op
	case opInvoke:
		var op Invoke
		if op.ContractID, err = readString(r); err != nil {
			return nil, fmt.Errorf("decode invoke contract id: %w", err)
		}
		if op.Function, err = readString(r); err != nil {
			return nil, fmt.Errorf("decode invoke function: %w", err)
		}
		var cb [4]byte
		if _, err := readFull(r, cb[:]); err != nil {
			return nil, fmt.Errorf("decode invoke arg count: %w", err)
		}
		count := binary.BigEndian.Uint32(cb[:])
		if count > uint32(r.Len()) {
			return nil, fmt.Errorf("decode invoke: arg count %d exceeds remaining bytes", count)
		}
		for i := uint32(0); i < count; i++ {
			arg, err := decodeSCVal(r)
			if err != nil {
				return nil, fmt.Errorf("decode invoke arg %d: %w", i, err)
			}
			op.Args = append(op.Args, arg)
		}
		e.Op = op
	default:
		return nil, fmt.Errorf("decode envelope: unknown op tag %d", tag)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("decode envelope: %d trailing bytes", r.Len())
	}
	return e, nil
}

// EncodeSigned wraps envelope bytes and signatures into the signed
// transport form.
func EncodeSigned(envBytes []byte, sigs [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(wireVersion)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(envBytes)))
	buf.Write(lb[:])
	buf.Write(envBytes)
	buf.WriteByte(byte(len(sigs)))
	for _, sig := range sigs {
		binary.BigEndian.PutUint32(lb[:], uint32(len(sig)))
		buf.Write(lb[:])
		buf.Write(sig)
	}
	return buf.Bytes()
}

// DecodeSigned splits a signed transport blob into envelope bytes and
// signatures.
func DecodeSigned(data []byte) (envBytes []byte, sigs [][]byte, err error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, nil, fmt.Errorf("decode signed envelope: %w", err)
	}
	if version != wireVersion {
		return nil, nil, fmt.Errorf("decode signed envelope: unsupported version %d", version)
	}

	var lb [4]byte
	if _, err := readFull(r, lb[:]); err != nil {
		return nil, nil, fmt.Errorf("decode signed envelope length: %w", err)
	}
	n := binary.BigEndian.Uint32(lb[:])
	if n > uint32(r.Len()) {
		return nil, nil, fmt.Errorf("decode signed envelope: length %d exceeds remaining %d", n, r.Len())
	}
	envBytes = make([]byte, n)
	if _, err := readFull(r, envBytes); err != nil {
		return nil, nil, fmt.Errorf("decode signed envelope body: %w", err)
	}

	count, err := r.ReadByte()
	if err != nil {
		return nil, nil, fmt.Errorf("decode signature count: %w", err)
	}
	for i := 0; i < int(count); i++ {
		if _, err := readFull(r, lb[:]); err != nil {
			return nil, nil, fmt.Errorf("decode signature %d length: %w", i, err)
		}
		sn := binary.BigEndian.Uint32(lb[:])
		if sn > uint32(r.Len()) {
			return nil, nil, fmt.Errorf("decode signature %d: length %d exceeds remaining %d", i, sn, r.Len())
		}
		sig := make([]byte, sn)
		if _, err := readFull(r, sig); err != nil {
			return nil, nil, fmt.Errorf("decode signature %d: %w", i, err)
		}
		sigs = append(sigs, sig)
	}

	if r.Len() != 0 {
		return nil, nil, fmt.Errorf("decode signed envelope: %d trailing bytes", r.Len())
	}
	return envBytes, sigs, nil
}

// ContractID computes the deterministic contract identity for a
// (network, source account, salt, code hash) tuple, rendered as a C...
// strkey. Identical inputs always yield the same ID.
func ContractID(networkPassphrase, source string, salt [32]byte, wasmHash [32]byte) string {
	networkID := sha256.Sum256([]byte(networkPassphrase))
	h := sha256.New()
	h.Write(networkID[:])
	h.Write([]byte(source))
	h.Write(salt[:])
	h.Write(wasmHash[:])
	var id [32]byte
	copy(id[:], h.Sum(nil))
	return strkey.EncodeContract(id)
}
