// Package plugin defines the payment processor capability contract.
// Implementations wrap an external processor; the core treats them as
// opaque and only relies on the request/response types declared here.
package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the plugin's view of one attempted call.
type Status string

const (
	StatusProcessed Status = "PROCESSED"
	StatusPending   Status = "PENDING"
	StatusError     Status = "ERROR"
	StatusCanceled  Status = "CANCELED"
	// StatusUndefined means the outcome on the processor side is
	// indeterminate (timeout, crash, ambiguous response). It is never a
	// final answer; reconciliation must re-derive the true status.
	StatusUndefined Status = "UNDEFINED"
)

// Property is an opaque key/value forwarded to the plugin.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TransactionInfo describes the outcome of one attempted plugin call.
type TransactionInfo struct {
	PaymentID         snowflake.ID
	TransactionID     snowflake.ID
	Amount            int64
	Currency          string
	Status            Status
	GatewayError      string
	GatewayErrorCode  string
	FirstReferenceID  string
	SecondReferenceID string
	CreatedAt         time.Time
}

// TransactionRequest carries the arguments of one plugin call. The
// transaction identifier doubles as the plugin-side deduplication key:
// a retried dispatch for the same transaction must not double-charge.
type TransactionRequest struct {
	AccountID       snowflake.ID
	PaymentID       snowflake.ID
	TransactionID   snowflake.ID
	PaymentMethodID snowflake.ID
	Amount          int64
	Currency        string
	Properties      []Property
}

// Error is a business failure: the plugin definitively could not or
// would not process the call. It is distinct from infrastructure
// failures (timeouts, crashes), which leave the outcome unknown.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("plugin error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("plugin error: %s", e.Message)
}

// PaymentPluginApi is the capability interface the automaton calls.
type PaymentPluginApi interface {
	Name() string

	Authorize(ctx context.Context, req TransactionRequest) (*TransactionInfo, error)
	Capture(ctx context.Context, req TransactionRequest) (*TransactionInfo, error)
	Purchase(ctx context.Context, req TransactionRequest) (*TransactionInfo, error)
	Refund(ctx context.Context, req TransactionRequest) (*TransactionInfo, error)
	Credit(ctx context.Context, req TransactionRequest) (*TransactionInfo, error)
	Void(ctx context.Context, req TransactionRequest) (*TransactionInfo, error)
	Chargeback(ctx context.Context, req TransactionRequest) (*TransactionInfo, error)

	// GetPaymentInfo returns the plugin's authoritative view of all
	// transactions attempted for a payment; used by reconciliation.
	GetPaymentInfo(ctx context.Context, accountID snowflake.ID, paymentID snowflake.ID, properties []Property) ([]*TransactionInfo, error)
}
