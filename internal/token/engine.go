// Package token implements the SEP-41 fungible token state machine:
// balances, allowances, admin authority, mint/burn/freeze and the
// read-only query surface. The engine is logically single-threaded per
// token instance; ledger-level transaction ordering serializes mutating
// calls, so there is no internal locking. Each operation validates fully
// before mutating, so failures never leave partial state.
package token

import "strings"

// Engine enforces SEP-41 semantics over one token ledger state instance.
type Engine struct {
	clock LedgerClock

	initialized bool
	meta        Metadata
	cfg         Config
	admin       string
	frozen      bool // global freeze switch, admin-controlled

	totalSupply Amount
	balances    map[string]*balanceEntry
	allowances  map[allowanceKey]*allowanceValue

	events []Event
}

// NewEngine creates an uninitialized token engine. The clock supplies the
// current ledger sequence for allowance expiration.
func NewEngine(clock LedgerClock) *Engine {
	return &Engine{
		clock:      clock,
		balances:   make(map[string]*balanceEntry),
		allowances: make(map[allowanceKey]*allowanceValue),
	}
}

// Initialize sets metadata, policy, and the admin. It succeeds exactly
// once; any later call fails with ErrAlreadyInitialized and leaves the
// first call's state untouched.
func (e *Engine) Initialize(admin, name, symbol string, decimals uint32, cfg Config) error {
	const op = "initialize"
	if e.initialized {
		return opErr(op, ErrAlreadyInitialized)
	}
	if decimals > 18 {
		return opErr(op, ErrInvalidDecimals)
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(symbol) == "" || admin == "" {
		return opErr(op, ErrInvalidMetadata)
	}
	if cfg.MaxSupply != nil && cfg.MaxSupply.Sign() < 0 {
		return opErr(op, ErrInvalidMetadata)
	}
	// A fixed-supply token needs its cap declared up front.
	if cfg.FixedSupply && cfg.MaxSupply == nil {
		return opErr(op, ErrInvalidMetadata)
	}

	e.meta = Metadata{Name: name, Symbol: symbol, Decimals: decimals}
	if cfg.MaxSupply != nil {
		max := *cfg.MaxSupply
		cfg.MaxSupply = &max
	}
	e.cfg = cfg
	e.admin = admin
	e.totalSupply = Amount{}
	e.initialized = true
	return nil
}

// Mint credits amount to an account and grows total supply. Admin only,
// and only for mintable tokens.
func (e *Engine) Mint(invoker, to string, amount Amount) error {
	const op = "mint"
	if err := e.requireInit(op); err != nil {
		return err
	}
	if !e.cfg.Mintable {
		return opErr(op, ErrNotMintable)
	}
	if invoker != e.admin {
		return opErr(op, ErrUnauthorized)
	}
	if e.frozen {
		return opErr(op, ErrTokenFrozen)
	}
	if amount.Sign() <= 0 {
		return opErr(op, ErrInvalidAmount)
	}

	newSupply, err := e.totalSupply.Add(amount)
	if err != nil {
		return opErr(op, ErrOverflow)
	}
	if e.cfg.MaxSupply != nil && newSupply.Cmp(*e.cfg.MaxSupply) > 0 {
		return opErr(op, ErrSupplyCapExceeded)
	}
	newBalance, err := e.balanceOf(to).Add(amount)
	if err != nil {
		return opErr(op, ErrOverflow)
	}

	e.totalSupply = newSupply
	e.setBalance(to, newBalance)
	e.publish(Event{Type: EventMint, To: to, Amount: amount})
	return nil
}

// Burn debits amount from an account and shrinks total supply. The
// invoker must be the account itself or hold sufficient allowance from it.
func (e *Engine) Burn(invoker, from string, amount Amount) error {
	const op = "burn"
	if err := e.requireInit(op); err != nil {
		return err
	}
	if !e.cfg.Burnable {
		return opErr(op, ErrNotBurnable)
	}
	if e.frozen {
		return opErr(op, ErrTokenFrozen)
	}
	if amount.Sign() <= 0 {
		return opErr(op, ErrInvalidAmount)
	}
	if e.isAccountFrozen(from) {
		return opErr(op, ErrAccountFrozen)
	}

	useAllowance := invoker != from
	if useAllowance {
		if err := e.checkAllowance(op, from, invoker, amount); err != nil {
			return err
		}
	}
	balance := e.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return opErr(op, ErrInsufficientBalance)
	}

	newBalance, err := balance.Sub(amount)
	if err != nil {
		return opErr(op, ErrOverflow)
	}
	newSupply, err := e.totalSupply.Sub(amount)
	if err != nil {
		return opErr(op, ErrOverflow)
	}

	if useAllowance {
		e.spendAllowance(from, invoker, amount)
	}
	e.setBalance(from, newBalance)
	e.totalSupply = newSupply
	e.publish(Event{Type: EventBurn, From: from, Amount: amount})
	return nil
}

// Transfer moves amount from the invoker to another account. Both legs
// apply atomically or not at all.
func (e *Engine) Transfer(invoker, to string, amount Amount) error {
	return e.transfer("transfer", invoker, invoker, to, amount, false)
}

// TransferFrom moves amount from one account to another, consuming the
// spender's allowance.
func (e *Engine) TransferFrom(spender, from, to string, amount Amount) error {
	const op = "transfer_from"
	if err := e.requireInit(op); err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return opErr(op, ErrInvalidAmount)
	}
	if err := e.checkAllowance(op, from, spender, amount); err != nil {
		return err
	}
	if err := e.transfer(op, spender, from, to, amount, true); err != nil {
		return err
	}
	e.spendAllowance(from, spender, amount)
	return nil
}

func (e *Engine) transfer(op, invoker, from, to string, amount Amount, viaAllowance bool) error {
	if err := e.requireInit(op); err != nil {
		return err
	}
	if e.frozen {
		return opErr(op, ErrTokenFrozen)
	}
	if amount.Sign() <= 0 {
		return opErr(op, ErrInvalidAmount)
	}
	if e.isAccountFrozen(from) || e.isAccountFrozen(to) {
		return opErr(op, ErrAccountFrozen)
	}
	fromBalance := e.balanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return opErr(op, ErrInsufficientBalance)
	}
	if from == to {
		// Both legs land on the same account and cancel out. Validate,
		// publish, and leave the balance untouched.
		e.publish(Event{Type: EventTransfer, From: from, To: to, Amount: amount})
		return nil
	}

	newFrom, err := fromBalance.Sub(amount)
	if err != nil {
		return opErr(op, ErrOverflow)
	}
	newTo, err := e.balanceOf(to).Add(amount)
	if err != nil {
		return opErr(op, ErrOverflow)
	}

	e.setBalance(from, newFrom)
	e.setBalance(to, newTo)
	e.publish(Event{Type: EventTransfer, From: from, To: to, Amount: amount})
	return nil
}

// Approve replaces the allowance from owner to spender. Amount zero is
// the cancellation idiom; a positive amount requires an expiration ledger
// strictly in the future.
func (e *Engine) Approve(owner, spender string, amount Amount, expirationLedger uint32) error {
	const op = "approve"
	if err := e.requireInit(op); err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return opErr(op, ErrInvalidAmount)
	}
	if amount.IsZero() {
		delete(e.allowances, allowanceKey{owner: owner, spender: spender})
		e.publish(Event{Type: EventApprove, From: owner, Spender: spender, Amount: amount, ExpirationLedger: expirationLedger})
		return nil
	}
	if expirationLedger <= e.clock.CurrentLedger() {
		return opErr(op, ErrInvalidExpiration)
	}

	e.allowances[allowanceKey{owner: owner, spender: spender}] = &allowanceValue{
		amount:           amount,
		expirationLedger: expirationLedger,
	}
	e.publish(Event{Type: EventApprove, From: owner, Spender: spender, Amount: amount, ExpirationLedger: expirationLedger})
	return nil
}

// Freeze marks an account frozen. Admin only, freezable tokens only.
func (e *Engine) Freeze(invoker, account string) error {
	const op = "freeze"
	if err := e.checkFreezeAuth(op, invoker); err != nil {
		return err
	}
	entry := e.balances[account]
	if entry == nil {
		entry = &balanceEntry{}
		e.balances[account] = entry
	}
	entry.frozen = true
	e.publish(Event{Type: EventFreeze, To: account})
	return nil
}

// Unfreeze clears an account's frozen flag. Balance is unchanged by a
// freeze/unfreeze pair.
func (e *Engine) Unfreeze(invoker, account string) error {
	const op = "unfreeze"
	if err := e.checkFreezeAuth(op, invoker); err != nil {
		return err
	}
	if entry := e.balances[account]; entry != nil {
		entry.frozen = false
		if entry.amount.IsZero() {
			delete(e.balances, account)
		}
	}
	e.publish(Event{Type: EventUnfreeze, To: account})
	return nil
}

// SetFrozen toggles the global freeze switch, halting all mutating
// operations while set.
func (e *Engine) SetFrozen(invoker string, frozen bool) error {
	const op = "set_frozen"
	if err := e.checkFreezeAuth(op, invoker); err != nil {
		return err
	}
	e.frozen = frozen
	e.publish(Event{Type: EventSetFrozen, Frozen: frozen})
	return nil
}

// SetAdmin atomically replaces the admin.
func (e *Engine) SetAdmin(invoker, newAdmin string) error {
	const op = "set_admin"
	if err := e.requireInit(op); err != nil {
		return err
	}
	if invoker != e.admin {
		return opErr(op, ErrUnauthorized)
	}
	if newAdmin == "" {
		return opErr(op, ErrInvalidMetadata)
	}
	e.admin = newAdmin
	e.publish(Event{Type: EventSetAdmin, To: newAdmin})
	return nil
}

// Read-only queries. Unknown accounts read as zero balance by convention.

// Balance returns the account's balance, zero if the account is unknown.
func (e *Engine) Balance(account string) Amount {
	return e.balanceOf(account)
}

// Allowance returns the effective allowance from owner to spender:
// zero when absent or expired.
func (e *Engine) Allowance(owner, spender string) Amount {
	v := e.allowances[allowanceKey{owner: owner, spender: spender}]
	if v == nil || e.clock.CurrentLedger() > v.expirationLedger {
		return Amount{}
	}
	return v.amount
}

// Name returns the token name.
func (e *Engine) Name() string { return e.meta.Name }

// Symbol returns the token symbol.
func (e *Engine) Symbol() string { return e.meta.Symbol }

// Decimals returns the display decimals.
func (e *Engine) Decimals() uint32 { return e.meta.Decimals }

// TotalSupply returns the current total supply.
func (e *Engine) TotalSupply() Amount { return e.totalSupply }

// Admin returns the current admin account.
func (e *Engine) Admin() string { return e.admin }

// MaxSupply returns the supply cap and whether one is set.
func (e *Engine) MaxSupply() (Amount, bool) {
	if e.cfg.MaxSupply == nil {
		return Amount{}, false
	}
	return *e.cfg.MaxSupply, true
}

// IsMintable reports the mintable policy flag.
func (e *Engine) IsMintable() bool { return e.cfg.Mintable }

// IsBurnable reports the burnable policy flag.
func (e *Engine) IsBurnable() bool { return e.cfg.Burnable }

// IsFreezable reports the freezable policy flag.
func (e *Engine) IsFreezable() bool { return e.cfg.Freezable }

// IsFrozen reports whether the account is frozen, either individually or
// by the global freeze switch.
func (e *Engine) IsFrozen(account string) bool {
	return e.frozen || e.isAccountFrozen(account)
}

// Initialized reports whether Initialize has succeeded.
func (e *Engine) Initialized() bool { return e.initialized }

// Events returns a copy of the in-order event log.
func (e *Engine) Events() []Event {
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Internal helpers.

func (e *Engine) requireInit(op string) error {
	if !e.initialized {
		return opErr(op, ErrNotInitialized)
	}
	return nil
}

func (e *Engine) checkFreezeAuth(op, invoker string) error {
	if err := e.requireInit(op); err != nil {
		return err
	}
	if !e.cfg.Freezable {
		return opErr(op, ErrNotFreezable)
	}
	if invoker != e.admin {
		return opErr(op, ErrUnauthorized)
	}
	return nil
}

func (e *Engine) balanceOf(account string) Amount {
	if entry := e.balances[account]; entry != nil {
		return entry.amount
	}
	return Amount{}
}

func (e *Engine) isAccountFrozen(account string) bool {
	entry := e.balances[account]
	return entry != nil && entry.frozen
}

// setBalance writes an account balance, dropping entries that have become
// zero and unfrozen (absence is zero by convention).
func (e *Engine) setBalance(account string, amount Amount) {
	entry := e.balances[account]
	if entry == nil {
		entry = &balanceEntry{}
		e.balances[account] = entry
	}
	entry.amount = amount
	if entry.amount.IsZero() && !entry.frozen {
		delete(e.balances, account)
	}
}

// checkAllowance validates the effective allowance without consuming it.
func (e *Engine) checkAllowance(op, owner, spender string, amount Amount) error {
	v := e.allowances[allowanceKey{owner: owner, spender: spender}]
	if v == nil {
		return opErr(op, ErrInsufficientAllowance)
	}
	if e.clock.CurrentLedger() > v.expirationLedger {
		return opErr(op, ErrAllowanceExpired)
	}
	if v.amount.Cmp(amount) < 0 {
		return opErr(op, ErrInsufficientAllowance)
	}
	return nil
}

// spendAllowance decrements a previously checked allowance.
func (e *Engine) spendAllowance(owner, spender string, amount Amount) {
	key := allowanceKey{owner: owner, spender: spender}
	v := e.allowances[key]
	remaining, _ := v.amount.Sub(amount) // checked by checkAllowance
	if remaining.IsZero() {
		delete(e.allowances, key)
	} else {
		v.amount = remaining
	}
}

func (e *Engine) publish(ev Event) {
	ev.Ledger = e.clock.CurrentLedger()
	e.events = append(e.events, ev)
}
