package token

import "errors"

// Stable error kinds for token operations. Callers match with errors.Is;
// every failure returned by the engine wraps exactly one of these.
var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrInvalidDecimals    = errors.New("invalid decimals")
	ErrInvalidMetadata    = errors.New("invalid metadata")

	ErrUnauthorized  = errors.New("unauthorized")
	ErrAccountFrozen = errors.New("account frozen")
	ErrTokenFrozen   = errors.New("token globally frozen")

	ErrNotMintable       = errors.New("token is not mintable")
	ErrNotBurnable       = errors.New("token is not burnable")
	ErrNotFreezable      = errors.New("token is not freezable")
	ErrSupplyCapExceeded = errors.New("supply cap exceeded")

	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidExpiration     = errors.New("invalid expiration ledger")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrAllowanceExpired      = errors.New("allowance expired")
	ErrOverflow              = errors.New("amount overflow")
)

// Error couples the failing operation name with its stable kind.
// It never exposes internal state representation.
type Error struct {
	Op   string // entry point name, e.g. "mint"
	Kind error  // one of the kinds above
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func opErr(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}
