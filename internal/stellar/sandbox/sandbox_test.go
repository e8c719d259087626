package sandbox

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"testing"

	"stellar-token-lab/internal/envelope"
	"stellar-token-lab/internal/stellar"
	"stellar-token-lab/internal/strkey"
	"stellar-token-lab/internal/token"
)

const testPassphrase = "Test SDF Network ; September 2015"

type testEnv struct {
	sb      *Sandbox
	builder *envelope.Builder
	source  string
	priv    ed25519.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(bytes.NewReader(bytes.Repeat([]byte{0x5A}, 64)))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var raw [32]byte
	copy(raw[:], pub)
	source := strkey.EncodeAccount(raw)

	sb := New(testPassphrase)
	sb.FundAccount(source)
	return &testEnv{
		sb:      sb,
		builder: envelope.NewBuilder(testPassphrase),
		source:  source,
		priv:    priv,
	}
}

// submit builds, signs, and submits one operation at the next sequence
// number, then polls for its final status.
func (te *testEnv) submit(t *testing.T, op envelope.Operation) *stellar.TxResult {
	t.Helper()
	ctx := context.Background()

	seq, err := te.sb.GetAccountSequence(ctx, te.source)
	if err != nil {
		t.Fatalf("get sequence: %v", err)
	}
	env, err := te.builder.Build(op, te.source, seq+1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	hash := env.Hash()
	sig := ed25519.Sign(te.priv, hash[:])
	blob := envelope.EncodeSigned(env.Bytes(), [][]byte{sig})

	sub, err := te.sb.SubmitTransaction(ctx, blob)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status == stellar.TxStatusFailed {
		return &stellar.TxResult{TxHash: sub.TxHash, Status: stellar.TxStatusFailed, ErrorCode: sub.ErrorCode}
	}

	res, err := te.sb.GetTransaction(ctx, sub.TxHash)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	return res
}

func (te *testEnv) deployToken(t *testing.T) string {
	t.Helper()
	wasm := []byte("token contract bytecode")

	res := te.submit(t, envelope.UploadWasm{Wasm: wasm})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("upload failed: %s %s", res.ErrorCode, res.ErrorDetail)
	}

	wasmHash := envelope.UploadWasm{Wasm: wasm}.Hash()
	salt := [32]byte{0x01}
	res = te.submit(t, envelope.CreateInstance{WasmHash: wasmHash, Salt: salt})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("create failed: %s %s", res.ErrorCode, res.ErrorDetail)
	}
	contractID := res.ReturnValue

	res = te.submit(t, envelope.Invoke{
		ContractID: contractID,
		Function:   "initialize",
		Args: envelope.InitializeArgs(te.source, "Test Token", "TST", 7, token.Config{
			Mintable: true,
			Burnable: true,
		}),
	})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("initialize failed: %s %s", res.ErrorCode, res.ErrorDetail)
	}
	return contractID
}

func TestSandboxFullDeployment(t *testing.T) {
	te := newTestEnv(t)
	contractID := te.deployToken(t)

	res := te.submit(t, envelope.Invoke{
		ContractID: contractID,
		Function:   "mint",
		Args:       envelope.MintArgs(te.source, token.NewAmount(1_000_000)),
	})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("mint failed: %s %s", res.ErrorCode, res.ErrorDetail)
	}

	eng, ok := te.sb.Contract(contractID)
	if !ok {
		t.Fatal("contract not found after deployment")
	}
	if got := eng.Balance(te.source); got.Cmp(token.NewAmount(1_000_000)) != 0 {
		t.Errorf("balance = %s, want 1000000", got)
	}
	if eng.Name() != "Test Token" || eng.Symbol() != "TST" || eng.Decimals() != 7 {
		t.Errorf("metadata = %s/%s/%d", eng.Name(), eng.Symbol(), eng.Decimals())
	}
}

func TestSandboxSequenceEnforcement(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()

	env, err := te.builder.Build(envelope.UploadWasm{Wasm: []byte("code")}, te.source, 99)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	hash := env.Hash()
	sig := ed25519.Sign(te.priv, hash[:])
	blob := envelope.EncodeSigned(env.Bytes(), [][]byte{sig})

	sub, err := te.sb.SubmitTransaction(ctx, blob)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != stellar.TxStatusFailed || sub.ErrorCode != "txBadSeq" {
		t.Fatalf("expected txBadSeq rejection, got %s/%s", sub.Status, sub.ErrorCode)
	}

	// A rejected sequence must not consume the account's counter.
	seq, err := te.sb.GetAccountSequence(ctx, te.source)
	if err != nil {
		t.Fatalf("get sequence: %v", err)
	}
	if seq != 0 {
		t.Errorf("sequence consumed by rejected submission: %d", seq)
	}
}

func TestSandboxUnsignedRejected(t *testing.T) {
	te := newTestEnv(t)

	env, err := te.builder.Build(envelope.UploadWasm{Wasm: []byte("code")}, te.source, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	blob := envelope.EncodeSigned(env.Bytes(), nil)

	sub, err := te.sb.SubmitTransaction(context.Background(), blob)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != stellar.TxStatusFailed || sub.ErrorCode != "txBadAuth" {
		t.Errorf("expected txBadAuth, got %s/%s", sub.Status, sub.ErrorCode)
	}
}

func TestSandboxCreateIdempotent(t *testing.T) {
	te := newTestEnv(t)
	contractID := te.deployToken(t)

	wasmHash := envelope.UploadWasm{Wasm: []byte("token contract bytecode")}.Hash()
	res := te.submit(t, envelope.CreateInstance{WasmHash: wasmHash, Salt: [32]byte{0x01}})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("re-create failed: %s %s", res.ErrorCode, res.ErrorDetail)
	}
	if res.ReturnValue != contractID {
		t.Errorf("re-create returned %s, want %s", res.ReturnValue, contractID)
	}

	// The original instance must survive a repeated creation untouched.
	eng, _ := te.sb.Contract(contractID)
	if !eng.Initialized() {
		t.Error("re-create replaced the initialized instance")
	}
}

func TestSandboxContractErrorMapping(t *testing.T) {
	te := newTestEnv(t)
	contractID := te.deployToken(t)

	// Non-admin mint maps to an authorization failure.
	otherPub, otherPriv, err := ed25519.GenerateKey(bytes.NewReader(bytes.Repeat([]byte{0x77}, 64)))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var raw [32]byte
	copy(raw[:], otherPub)
	other := strkey.EncodeAccount(raw)
	te.sb.FundAccount(other)

	env, err := te.builder.Build(envelope.Invoke{
		ContractID: contractID,
		Function:   "mint",
		Args:       envelope.MintArgs(other, token.NewAmount(1)),
	}, other, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	hash := env.Hash()
	sig := ed25519.Sign(otherPriv, hash[:])
	sub, err := te.sb.SubmitTransaction(context.Background(), envelope.EncodeSigned(env.Bytes(), [][]byte{sig}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := te.sb.GetTransaction(context.Background(), sub.TxHash)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if res.Status != stellar.TxStatusFailed || res.ErrorCode != "txBadAuth" {
		t.Errorf("expected txBadAuth, got %s/%s", res.Status, res.ErrorCode)
	}

	// Transfer exceeding balance maps to a contract trap.
	res = te.submit(t, envelope.Invoke{
		ContractID: contractID,
		Function:   "transfer",
		Args:       envelope.TransferArgs(other, token.NewAmount(5)),
	})
	if res.Status != stellar.TxStatusFailed || res.ErrorCode != "contractTrap" {
		t.Errorf("expected contractTrap, got %s/%s", res.Status, res.ErrorCode)
	}
}

func TestSandboxLedgerClockDuringExecution(t *testing.T) {
	te := newTestEnv(t)
	contractID := te.deployToken(t)

	// Engine operations read the clock while the submission is still
	// executing: publish stamps events, approve validates expiration.
	res := te.submit(t, envelope.Invoke{
		ContractID: contractID,
		Function:   "mint",
		Args:       envelope.MintArgs(te.source, token.NewAmount(500)),
	})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("mint failed: %s %s", res.ErrorCode, res.ErrorDetail)
	}

	res = te.submit(t, envelope.Invoke{
		ContractID: contractID,
		Function:   "approve",
		Args: []envelope.SCVal{
			envelope.AddressVal(te.source),
			envelope.I128Val(token.NewAmount(100)),
			envelope.U32Val(te.sb.CurrentLedger() + 10),
		},
	})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("approve failed: %s %s", res.ErrorCode, res.ErrorDetail)
	}

	// Ledger 1 at start, one increment per accepted transaction: three
	// deployment steps plus mint and approve.
	if got := te.sb.CurrentLedger(); got != 6 {
		t.Errorf("ledger = %d, want 6", got)
	}

	eng, _ := te.sb.Contract(contractID)
	events := eng.Events()
	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	last := events[len(events)-1]
	if last.Type != token.EventApprove || last.Ledger != te.sb.CurrentLedger() {
		t.Errorf("last event %s at ledger %d, want %s at %d",
			last.Type, last.Ledger, token.EventApprove, te.sb.CurrentLedger())
	}
}

func TestSandboxInjectedRejection(t *testing.T) {
	te := newTestEnv(t)
	te.sb.RejectNext("txInsufficientFee")

	res := te.submit(t, envelope.UploadWasm{Wasm: []byte("code")})
	if res.Status != stellar.TxStatusFailed || res.ErrorCode != "txInsufficientFee" {
		t.Fatalf("expected injected rejection, got %s/%s", res.Status, res.ErrorCode)
	}

	// The next submission goes through.
	res = te.submit(t, envelope.UploadWasm{Wasm: []byte("code")})
	if res.Status != stellar.TxStatusSuccess {
		t.Fatalf("follow-up submission failed: %s", res.ErrorCode)
	}
}

func TestSandboxUnknownTransaction(t *testing.T) {
	te := newTestEnv(t)
	res, err := te.sb.GetTransaction(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if res.Status != stellar.TxStatusNotFound {
		t.Errorf("expected NOT_FOUND, got %s", res.Status)
	}
}
