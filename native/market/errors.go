package market

import (
	"errors"
	"fmt"

	"fiatmarket/ledger"
)

// ErrorKind classifies a failed write operation. Every failure crossing the
// engine boundary carries exactly one kind so the RPC layer can surface a
// uniform result shape.
type ErrorKind string

const (
	KindProfileRequired             ErrorKind = "PROFILE_REQUIRED"
	KindInsufficientFunds           ErrorKind = "INSUFFICIENT_FUNDS"
	KindNotOwner                    ErrorKind = "NOT_OWNER"
	KindNotAdmin                    ErrorKind = "NOT_ADMIN"
	KindInvalidStateTransition      ErrorKind = "INVALID_STATE_TRANSITION"
	KindOfferHasActiveEscrows       ErrorKind = "OFFER_HAS_ACTIVE_ESCROWS"
	KindInsufficientOfferCollateral ErrorKind = "INSUFFICIENT_OFFER_COLLATERAL"
	KindConcurrencyConflict         ErrorKind = "CONCURRENCY_CONFLICT"
	KindLedgerUnavailable           ErrorKind = "LEDGER_UNAVAILABLE"
	KindNotFound                    ErrorKind = "NOT_FOUND"
	KindInvalidParams               ErrorKind = "INVALID_PARAMS"
	KindInternal                    ErrorKind = "INTERNAL"
)

// Retryable reports whether an operation failing with this kind may succeed
// on a later attempt without caller-side changes.
func (k ErrorKind) Retryable() bool {
	return k == KindConcurrencyConflict || k == KindLedgerUnavailable
}

// Error is a classified marketplace failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", string(e.Kind), e.Message)
}

// Errf constructs a classified error with a formatted message.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from err, mapping ledger-level failures
// onto the taxonomy. Unclassified errors report KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	switch {
	case errors.Is(err, ledger.ErrConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ledger.ErrUnavailable):
		return KindLedgerUnavailable
	case errors.Is(err, ledger.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
