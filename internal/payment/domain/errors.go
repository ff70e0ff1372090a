package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a payment error for transport mapping and retry
// decisions.
type ErrorKind string

const (
	// ErrorKindCaller covers bad requests and idempotency conflicts.
	ErrorKindCaller ErrorKind = "CALLER_ERROR"
	// ErrorKindLockTimeout means the account lock could not be acquired;
	// nothing was recorded, the caller may retry.
	ErrorKindLockTimeout ErrorKind = "LOCK_TIMEOUT"
	// ErrorKindPluginFailure is a definitive business decline by the
	// plugin; the attempt is recorded with PLUGIN_FAILURE status.
	ErrorKindPluginFailure ErrorKind = "PLUGIN_BUSINESS_FAILURE"
	// ErrorKindUnknownOutcome means the money movement is unresolved;
	// the attempt is recorded as UNKNOWN for reconciliation.
	ErrorKindUnknownOutcome ErrorKind = "UNKNOWN_OUTCOME"
	// ErrorKindInvalidOperation means the operation is not legal from
	// the payment's current state.
	ErrorKindInvalidOperation ErrorKind = "INVALID_OPERATION"
	ErrorKindInternal         ErrorKind = "INTERNAL"
)

// Error is the typed error returned by the payment service. Code is a
// stable machine-readable identifier; Is matches by code so sentinel
// comparisons survive wrapping.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewError builds a typed payment error.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError builds a typed payment error around a cause.
func WrapError(kind ErrorKind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

var (
	// ErrActiveTransactionKeyExists rejects a transaction external key
	// already used by a non-retryable attempt.
	ErrActiveTransactionKeyExists = NewError(ErrorKindCaller,
		"PAYMENT_ACTIVE_TRANSACTION_KEY_EXISTS",
		"transaction external key already in use")

	ErrNoSuchPayment = NewError(ErrorKindCaller,
		"PAYMENT_NO_SUCH_PAYMENT",
		"payment does not exist")

	// ErrNoSuchSuccessPayment rejects a chargeback against a payment
	// with no successful transaction to dispute.
	ErrNoSuchSuccessPayment = NewError(ErrorKindInvalidOperation,
		"PAYMENT_NO_SUCH_SUCCESS_PAYMENT",
		"no successful transaction to dispute")

	ErrNoPendingTransaction = NewError(ErrorKindInvalidOperation,
		"PAYMENT_NO_PENDING_TRANSACTION",
		"no pending transaction to complete")

	ErrInvalidAmount = NewError(ErrorKindCaller,
		"PAYMENT_INVALID_AMOUNT",
		"amount must be positive")

	ErrCurrencyMismatch = NewError(ErrorKindCaller,
		"PAYMENT_CURRENCY_MISMATCH",
		"currency does not match the payment currency")

	ErrLockTimeout = NewError(ErrorKindLockTimeout,
		"PAYMENT_ACCOUNT_LOCK_TIMEOUT",
		"timed out waiting for the account lock")

	ErrPluginTimeout = NewError(ErrorKindUnknownOutcome,
		"PAYMENT_PLUGIN_TIMEOUT",
		"plugin call timed out; outcome unknown")

	ErrUnknownOutcome = NewError(ErrorKindUnknownOutcome,
		"PAYMENT_UNKNOWN_OUTCOME",
		"plugin did not report a definitive outcome")

	ErrInvalidStateTransition = NewError(ErrorKindInvalidOperation,
		"PAYMENT_INVALID_STATE_TRANSITION",
		"operation not allowed from the current payment state")

	ErrInternal = NewError(ErrorKindInternal,
		"PAYMENT_INTERNAL",
		"internal payment error")
)
