package envelope

import "stellar-token-lab/internal/token"

// InitializeArgs builds the positional argument list for the token
// contract's initialize entry point. A nil MaxSupply encodes as Void.
func InitializeArgs(admin, name, symbol string, decimals uint32, cfg token.Config) []SCVal {
	maxSupply := VoidVal()
	if cfg.MaxSupply != nil {
		maxSupply = I128Val(*cfg.MaxSupply)
	}
	return []SCVal{
		AddressVal(admin),
		StringVal(name),
		StringVal(symbol),
		U32Val(decimals),
		BoolVal(cfg.Mintable),
		BoolVal(cfg.Burnable),
		BoolVal(cfg.Freezable),
		BoolVal(cfg.FixedSupply),
		maxSupply,
	}
}

// MintArgs builds the argument list for the mint entry point.
func MintArgs(to string, amount token.Amount) []SCVal {
	return []SCVal{AddressVal(to), I128Val(amount)}
}

// TransferArgs builds the argument list for the transfer entry point.
func TransferArgs(to string, amount token.Amount) []SCVal {
	return []SCVal{AddressVal(to), I128Val(amount)}
}
