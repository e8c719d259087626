// Package sandbox is an in-process network backend. It implements the
// same Client surface as the RPC client but executes contract calls
// locally against token engines, which makes end-to-end deployment runs
// possible without a network.
package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"stellar-token-lab/internal/envelope"
	"stellar-token-lab/internal/stellar"
	"stellar-token-lab/internal/token"
)

// Sandbox hosts accounts, uploaded code, and contract instances in
// memory. Each accepted transaction advances the ledger by one.
type Sandbox struct {
	mu         sync.Mutex
	passphrase string
	sequences  map[string]int64
	wasms      map[[32]byte][]byte
	contracts  map[string]*token.Engine
	results    map[string]*stellar.TxResult

	// ledger lives outside s.mu: executing engines read the clock
	// mid-transaction, while SubmitTransaction still holds the lock.
	ledger atomic.Uint32

	// rejections is a FIFO of error codes to inject into the next
	// submissions, used to exercise retry paths.
	rejections []string
}

// New creates an empty sandbox bound to a network passphrase. The ledger
// starts at 1 so that allowance expirations in the past are expressible.
func New(networkPassphrase string) *Sandbox {
	s := &Sandbox{
		passphrase: networkPassphrase,
		sequences:  make(map[string]int64),
		wasms:      make(map[[32]byte][]byte),
		contracts:  make(map[string]*token.Engine),
		results:    make(map[string]*stellar.TxResult),
	}
	s.ledger.Store(1)
	return s
}

// Compile-time interface checks.
var (
	_ stellar.Client    = (*Sandbox)(nil)
	_ token.LedgerClock = (*Sandbox)(nil)
)

// FundAccount registers an account so it can submit transactions.
func (s *Sandbox) FundAccount(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sequences[account]; !ok {
		s.sequences[account] = 0
	}
}

// RejectNext queues an error code to be returned as a definitive
// rejection of the next submission instead of executing it.
func (s *Sandbox) RejectNext(errorCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, errorCode)
}

// CurrentLedger implements token.LedgerClock.
func (s *Sandbox) CurrentLedger() uint32 {
	return s.ledger.Load()
}

// Contract returns the engine behind a contract ID, for test assertions.
func (s *Sandbox) Contract(contractID string) (*token.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.contracts[contractID]
	return eng, ok
}

// GetLatestLedger implements stellar.Client.
func (s *Sandbox) GetLatestLedger(ctx context.Context) (uint32, error) {
	return s.CurrentLedger(), nil
}

// GetAccountSequence implements stellar.Client.
func (s *Sandbox) GetAccountSequence(ctx context.Context, account string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[account]
	if !ok {
		return 0, fmt.Errorf("account %s not found", account)
	}
	return seq, nil
}

// GetTransaction implements stellar.Client.
func (s *Sandbox) GetTransaction(ctx context.Context, txHash string) (*stellar.TxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[txHash]; ok {
		clone := *res
		return &clone, nil
	}
	return &stellar.TxResult{TxHash: txHash, Status: stellar.TxStatusNotFound}, nil
}

// SubmitTransaction implements stellar.Client. The sandbox validates the
// signed blob, checks the sequence number, executes the operation, and
// records a result that GetTransaction can replay later.
func (s *Sandbox) SubmitTransaction(ctx context.Context, signedEnvelope []byte) (*stellar.SubmitResult, error) {
	envBytes, sigs, err := envelope.DecodeSigned(signedEnvelope)
	if err != nil {
		return &stellar.SubmitResult{Status: stellar.TxStatusFailed, ErrorCode: "txMalformed"}, nil
	}
	env, err := envelope.Decode(envBytes, s.passphrase)
	if err != nil {
		return &stellar.SubmitResult{Status: stellar.TxStatusFailed, ErrorCode: "txMalformed"}, nil
	}
	txHash := hex.EncodeToString(hashOf(env))

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rejections) > 0 {
		code := s.rejections[0]
		s.rejections = s.rejections[1:]
		return &stellar.SubmitResult{TxHash: txHash, Status: stellar.TxStatusFailed, ErrorCode: code}, nil
	}

	if len(sigs) == 0 {
		return &stellar.SubmitResult{TxHash: txHash, Status: stellar.TxStatusFailed, ErrorCode: "txBadAuth"}, nil
	}

	seq, ok := s.sequences[env.Source]
	if !ok {
		return &stellar.SubmitResult{TxHash: txHash, Status: stellar.TxStatusFailed, ErrorCode: "txBadAuth"}, nil
	}
	if env.SeqNum != seq+1 {
		// Sequence mismatches are rejected before execution and do not
		// consume a sequence number.
		return &stellar.SubmitResult{TxHash: txHash, Status: stellar.TxStatusFailed, ErrorCode: "txBadSeq"}, nil
	}

	// Accepted transactions consume the sequence number and advance the
	// ledger whether or not execution succeeds.
	s.sequences[env.Source] = env.SeqNum
	ledger := s.ledger.Add(1)

	result := s.execute(env)
	result.TxHash = txHash
	result.Ledger = ledger
	s.results[txHash] = result

	if result.Status == stellar.TxStatusFailed {
		return &stellar.SubmitResult{TxHash: txHash, Status: stellar.TxStatusFailed, ErrorCode: result.ErrorCode}, nil
	}
	// Real networks acknowledge with PENDING; callers poll for the
	// outcome via GetTransaction.
	return &stellar.SubmitResult{TxHash: txHash, Status: stellar.TxStatusPending}, nil
}

func hashOf(env *envelope.Envelope) []byte {
	h := env.Hash()
	return h[:]
}

func (s *Sandbox) execute(env *envelope.Envelope) *stellar.TxResult {
	switch op := env.Op.(type) {
	case envelope.UploadWasm:
		hash := sha256.Sum256(op.Wasm)
		s.wasms[hash] = append([]byte(nil), op.Wasm...)
		return &stellar.TxResult{Status: stellar.TxStatusSuccess}

	case envelope.CreateInstance:
		if _, ok := s.wasms[op.WasmHash]; !ok {
			return failedResult("contractTrap", "wasm hash not found")
		}
		contractID := envelope.ContractID(s.passphrase, env.Source, op.Salt, op.WasmHash)
		// Re-creating an existing instance with the same identity is a
		// no-op, which makes a retried creation safe.
		if _, ok := s.contracts[contractID]; !ok {
			s.contracts[contractID] = token.NewEngine(s)
		}
		return &stellar.TxResult{Status: stellar.TxStatusSuccess, ReturnValue: contractID}

	case envelope.Invoke:
		eng, ok := s.contracts[op.ContractID]
		if !ok {
			return failedResult("contractTrap", fmt.Sprintf("contract %s not found", op.ContractID))
		}
		return s.invoke(eng, env.Source, op)

	default:
		return failedResult("txMalformed", "unknown operation")
	}
}

func failedResult(code, detail string) *stellar.TxResult {
	return &stellar.TxResult{Status: stellar.TxStatusFailed, ErrorCode: code, ErrorDetail: detail}
}

// invoke dispatches a contract call by function name. The invoker is the
// envelope's source account; inside the sandbox a valid signature on the
// envelope stands in for contract-level authorization of that account.
func (s *Sandbox) invoke(eng *token.Engine, invoker string, op envelope.Invoke) *stellar.TxResult {
	err := s.dispatch(eng, invoker, op)
	if err != nil {
		return failedResult(errorCode(err), err.Error())
	}
	return &stellar.TxResult{Status: stellar.TxStatusSuccess}
}

func (s *Sandbox) dispatch(eng *token.Engine, invoker string, op envelope.Invoke) error {
	args := op.Args
	switch op.Function {
	case "initialize":
		if len(args) != 9 {
			return fmt.Errorf("initialize: want 9 args, got %d", len(args))
		}
		cfg := token.Config{
			Mintable:    args[4].Bool,
			Burnable:    args[5].Bool,
			Freezable:   args[6].Bool,
			FixedSupply: args[7].Bool,
		}
		if args[8].Type == envelope.SCI128 {
			maxSupply := args[8].I128
			cfg.MaxSupply = &maxSupply
		}
		return eng.Initialize(args[0].Address, args[1].Str, args[2].Str, args[3].U32, cfg)
	case "mint":
		if len(args) != 2 {
			return fmt.Errorf("mint: want 2 args, got %d", len(args))
		}
		return eng.Mint(invoker, args[0].Address, args[1].I128)
	case "burn":
		if len(args) != 2 {
			return fmt.Errorf("burn: want 2 args, got %d", len(args))
		}
		return eng.Burn(invoker, args[0].Address, args[1].I128)
	case "transfer":
		if len(args) != 2 {
			return fmt.Errorf("transfer: want 2 args, got %d", len(args))
		}
		return eng.Transfer(invoker, args[0].Address, args[1].I128)
	case "transfer_from":
		if len(args) != 3 {
			return fmt.Errorf("transfer_from: want 3 args, got %d", len(args))
		}
		return eng.TransferFrom(invoker, args[0].Address, args[1].Address, args[2].I128)
	case "approve":
		if len(args) != 3 {
			return fmt.Errorf("approve: want 3 args, got %d", len(args))
		}
		return eng.Approve(invoker, args[0].Address, args[1].I128, args[2].U32)
	case "freeze":
		if len(args) != 1 {
			return fmt.Errorf("freeze: want 1 arg, got %d", len(args))
		}
		return eng.Freeze(invoker, args[0].Address)
	case "unfreeze":
		if len(args) != 1 {
			return fmt.Errorf("unfreeze: want 1 arg, got %d", len(args))
		}
		return eng.Unfreeze(invoker, args[0].Address)
	case "set_frozen":
		if len(args) != 1 {
			return fmt.Errorf("set_frozen: want 1 arg, got %d", len(args))
		}
		return eng.SetFrozen(invoker, args[0].Bool)
	case "set_admin":
		if len(args) != 1 {
			return fmt.Errorf("set_admin: want 1 arg, got %d", len(args))
		}
		return eng.SetAdmin(invoker, args[0].Address)
	default:
		return fmt.Errorf("unknown function %q", op.Function)
	}
}

func errorCode(err error) string {
	if errors.Is(err, token.ErrUnauthorized) {
		return "txBadAuth"
	}
	return "contractTrap"
}
