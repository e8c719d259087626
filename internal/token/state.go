package token

// Metadata is the immutable token description set once by Initialize.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint32
}

// Config is the token policy set at initialization. Only the admin is
// mutable afterwards (via SetAdmin); every flag is fixed for the lifetime
// of the instance.
type Config struct {
	Mintable    bool
	Burnable    bool
	Freezable   bool
	FixedSupply bool
	MaxSupply   *Amount // nil means uncapped (unless FixedSupply)
}

// balanceEntry is the per-account ledger record. Entries are created
// lazily on first credit; a zero, unfrozen entry is equivalent to absence.
type balanceEntry struct {
	amount Amount
	frozen bool
}

// allowanceKey identifies a delegated spending grant.
type allowanceKey struct {
	owner   string
	spender string
}

// allowanceValue is the grant itself. An expired grant is treated as zero
// regardless of the stored amount.
type allowanceValue struct {
	amount           Amount
	expirationLedger uint32
}

// LedgerClock supplies the current ledger sequence, used for allowance
// expiration. On-chain this is ambient; here it is injected so tests and
// the sandbox ledger can advance it.
type LedgerClock interface {
	CurrentLedger() uint32
}

// EventType names a contract event.
type EventType string

// Contract event types, one per mutating entry point.
const (
	EventMint      EventType = "mint"
	EventBurn      EventType = "burn"
	EventTransfer  EventType = "transfer"
	EventApprove   EventType = "approve"
	EventFreeze    EventType = "freeze"
	EventUnfreeze  EventType = "unfreeze"
	EventSetFrozen EventType = "set_frozen"
	EventSetAdmin  EventType = "set_admin"
)

// Event is one entry in the in-order contract event log.
type Event struct {
	Type   EventType
	From   string
	To     string
	Amount Amount

	// Approve only.
	Spender          string
	ExpirationLedger uint32

	// SetFrozen only.
	Frozen bool

	Ledger uint32
}
