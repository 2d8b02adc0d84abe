package shared

import (
	"errors"
	"fmt"
)

// Kind identifies a stable, machine-comparable ledger error category.
// The set is closed: every error the engine surfaces carries one of these.
type Kind string

const (
	KindUnbalanced          Kind = "UNBALANCED"
	KindAccountNotFound     Kind = "ACCOUNT_NOT_FOUND"
	KindAccountNotLeaf      Kind = "ACCOUNT_NOT_LEAF"
	KindPeriodClosed        Kind = "PERIOD_CLOSED"
	KindMalformedLines      Kind = "EMPTY_OR_MALFORMED_LINES"
	KindTaxMismatch         Kind = "TAX_MISMATCH"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindIdempotencyConflict Kind = "IDEMPOTENCY_CONFLICT"
	KindAlreadyReversed     Kind = "ALREADY_REVERSED"
	KindEntryNotFound       Kind = "ENTRY_NOT_FOUND"
	KindTamperDetected      Kind = "TAMPER_DETECTED"
	KindPostingFailed       Kind = "POSTING_FAILED"
)

// Error is a ledger error with a stable kind and human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "ledger: " + string(e.Kind)
	}
	return "ledger: " + string(e.Kind) + ": " + e.Detail
}

// Is matches any *Error with the same kind, so errors.Is(err, ErrUnbalanced)
// works regardless of detail text.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// E builds a kinded error with formatted detail.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Comparison targets for errors.Is.
var (
	ErrUnbalanced          = &Error{Kind: KindUnbalanced}
	ErrAccountNotFound     = &Error{Kind: KindAccountNotFound}
	ErrAccountNotLeaf      = &Error{Kind: KindAccountNotLeaf}
	ErrPeriodClosed        = &Error{Kind: KindPeriodClosed}
	ErrMalformedLines      = &Error{Kind: KindMalformedLines}
	ErrTaxMismatch         = &Error{Kind: KindTaxMismatch}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrIdempotencyConflict = &Error{Kind: KindIdempotencyConflict}
	ErrAlreadyReversed     = &Error{Kind: KindAlreadyReversed}
	ErrEntryNotFound       = &Error{Kind: KindEntryNotFound}
	ErrTamperDetected      = &Error{Kind: KindTamperDetected}
	ErrPostingFailed       = &Error{Kind: KindPostingFailed}
)

// KindOf extracts the ledger kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HTTPStatus maps an error kind to the response status handlers use.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindMalformedLines, KindUnbalanced, KindTaxMismatch,
		KindAccountNotFound, KindAccountNotLeaf, KindPeriodClosed:
		return 422
	case KindIdempotencyConflict, KindAlreadyReversed:
		return 409
	case KindEntryNotFound:
		return 404
	default:
		return 500
	}
}
