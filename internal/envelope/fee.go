package envelope

// BaseFee is the minimum per-transaction fee in stroops.
const BaseFee uint32 = 100

// Fixed over-estimates for operations whose resource footprint does not
// scale with caller input. Invocations pay more than instance creation
// because contract execution consumes instructions and ledger writes.
const (
	createInstanceFee uint32 = 10_000
	invokeFee         uint32 = 50_000
)

// Upload fees scale with code size: a flat floor plus a per-KiB charge,
// then a 50% margin on top. Envelopes with too little fee fail
// deterministically, so the estimate always rounds up.
const (
	uploadFloorFee  uint32 = 20_000
	uploadPerKiBFee uint32 = 1_000
)

// ComputeFee returns the deterministic fee estimate for an operation.
func ComputeFee(op Operation) uint32 {
	var fee uint32
	switch o := op.(type) {
	case UploadWasm:
		kib := uint32(len(o.Wasm)+1023) / 1024
		fee = uploadFloorFee + kib*uploadPerKiBFee
		fee += fee / 2
	case CreateInstance:
		fee = createInstanceFee
	case Invoke:
		fee = invokeFee
	default:
		fee = invokeFee
	}
	if fee < BaseFee {
		fee = BaseFee
	}
	return fee
}

// BumpFee raises a fee by 50% for retry after an insufficient-fee or
// resource-limit rejection.
func BumpFee(fee uint32) uint32 {
	bumped := fee + fee/2
	if bumped < fee {
		// overflow
		return ^uint32(0)
	}
	return bumped
}
