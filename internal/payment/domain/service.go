package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/plugin"
)

// CallOrigin distinguishes caller-driven operations from system-driven
// ones (reconciliation, scheduled completion).
type CallOrigin string

const (
	CallOriginAPI    CallOrigin = "API"
	CallOriginSystem CallOrigin = "SYSTEM"
)

// OperationRequest carries the arguments of one payment operation.
//
// PaymentID is zero for operations that create the payment (authorize,
// purchase, credit); follow-up operations identify the payment by ID or
// by its external key. External keys default to the generated IDs when
// blank.
type OperationRequest struct {
	AccountID       snowflake.ID
	PaymentMethodID snowflake.ID
	PaymentID       snowflake.ID

	PaymentExternalKey     string
	TransactionExternalKey string

	Amount   int64
	Currency string

	Properties []plugin.Property
	CallOrigin CallOrigin
}

// OperationResponse is the durable outcome of one operation.
type OperationResponse struct {
	Payment     *Payment
	Transaction *PaymentTransaction
}

// Service runs payment operations through the state machine: lock the
// account, validate, record the attempt, call the plugin, record the
// outcome. Every method returns a *Error on failure.
type Service interface {
	Authorize(ctx context.Context, req OperationRequest) (*OperationResponse, error)
	Capture(ctx context.Context, req OperationRequest) (*OperationResponse, error)
	Purchase(ctx context.Context, req OperationRequest) (*OperationResponse, error)
	Refund(ctx context.Context, req OperationRequest) (*OperationResponse, error)
	Credit(ctx context.Context, req OperationRequest) (*OperationResponse, error)
	Void(ctx context.Context, req OperationRequest) (*OperationResponse, error)
	Chargeback(ctx context.Context, req OperationRequest) (*OperationResponse, error)

	// CompletePending resolves a transaction previously left PENDING,
	// reusing its row instead of creating a new attempt.
	CompletePending(ctx context.Context, req OperationRequest) (*OperationResponse, error)

	GetPayment(ctx context.Context, paymentID snowflake.ID) (*Payment, []*PaymentTransaction, error)
	GetPaymentByExternalKey(ctx context.Context, externalKey string) (*Payment, []*PaymentTransaction, error)
}
