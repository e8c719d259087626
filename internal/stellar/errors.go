package stellar

import "fmt"

// ErrorClass categorizes a submission failure for retry decisions.
type ErrorClass string

// Failure classes reported by the network. Transient classes are safe to
// retry with a fresh sequence number; terminal classes mean the same
// envelope will never succeed.
const (
	ClassSequenceConflict      ErrorClass = "sequence_conflict"
	ClassInsufficientFee       ErrorClass = "insufficient_fee"
	ClassResourceLimitExceeded ErrorClass = "resource_limit_exceeded"
	ClassNetwork               ErrorClass = "network"
	ClassAuthorizationFailed   ErrorClass = "authorization_failed"
	ClassMalformedEnvelope     ErrorClass = "malformed_envelope"
	ClassContractTrap          ErrorClass = "contract_trap"
	ClassUnknown               ErrorClass = "unknown"
)

// Transient reports whether a failure of this class may succeed on retry.
func (c ErrorClass) Transient() bool {
	switch c {
	case ClassSequenceConflict, ClassInsufficientFee, ClassResourceLimitExceeded, ClassNetwork:
		return true
	default:
		return false
	}
}

// FeeRelated reports whether a retry should bump the fee.
func (c ErrorClass) FeeRelated() bool {
	return c == ClassInsufficientFee || c == ClassResourceLimitExceeded
}

// SubmitError is a definitive rejection from the network, carrying the
// class used by retry logic.
type SubmitError struct {
	Class  ErrorClass
	Detail string
}

func (e *SubmitError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("submission failed: %s", e.Class)
	}
	return fmt.Sprintf("submission failed: %s: %s", e.Class, e.Detail)
}

// classify maps the free-form error codes the RPC returns to a class.
func classify(code string) ErrorClass {
	switch code {
	case "txBadSeq", "sequence_conflict":
		return ClassSequenceConflict
	case "txInsufficientFee", "insufficient_fee":
		return ClassInsufficientFee
	case "resourceLimitExceeded", "resource_limit_exceeded":
		return ClassResourceLimitExceeded
	case "txBadAuth", "authorization_failed":
		return ClassAuthorizationFailed
	case "txMalformed", "malformed_envelope":
		return ClassMalformedEnvelope
	case "contractTrap", "contract_trap":
		return ClassContractTrap
	default:
		return ClassUnknown
	}
}
