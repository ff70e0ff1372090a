package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionType is the kind of operation attempted against the processor.
type TransactionType string

const (
	TransactionTypeAuthorize  TransactionType = "AUTHORIZE"
	TransactionTypeCapture    TransactionType = "CAPTURE"
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeCredit     TransactionType = "CREDIT"
	TransactionTypeVoid       TransactionType = "VOID"
	TransactionTypeChargeback TransactionType = "CHARGEBACK"
)

// TransactionStatus is the system's durable view of one attempt.
type TransactionStatus string

const (
	// TransactionStatusPending is recorded before the plugin is called
	// and again when the plugin reports an asynchronous outcome.
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	// TransactionStatusPaymentFailure is a definitive decline by the
	// processor (insufficient funds, card refused).
	TransactionStatusPaymentFailure TransactionStatus = "PAYMENT_FAILURE"
	// TransactionStatusPluginFailure is a definitive failure inside the
	// plugin or gateway integration, before a processor decision.
	TransactionStatusPluginFailure TransactionStatus = "PLUGIN_FAILURE"
	// TransactionStatusUnknown means the money movement is unresolved.
	// It is never a terminal answer; reconciliation owns it.
	TransactionStatusUnknown TransactionStatus = "UNKNOWN"
)

// IsTerminalFailure reports whether a new attempt may reuse this
// transaction's external key.
func (s TransactionStatus) IsTerminalFailure() bool {
	return s == TransactionStatusPaymentFailure || s == TransactionStatusPluginFailure
}

// Payment is one payment against an account, aggregating all attempts.
type Payment struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID       snowflake.ID `gorm:"not null;index" json:"account_id"`
	PaymentMethodID snowflake.ID `gorm:"not null" json:"payment_method_id"`
	ExternalKey     string       `gorm:"not null;uniqueIndex" json:"external_key"`
	Currency        string       `gorm:"not null" json:"currency"`

	// Amounts are refreshed from the transaction rows after every
	// operation; minor units in the payment currency.
	AuthorizedAmount  int64 `gorm:"not null;default:0" json:"authorized_amount"`
	CapturedAmount    int64 `gorm:"not null;default:0" json:"captured_amount"`
	PurchasedAmount   int64 `gorm:"not null;default:0" json:"purchased_amount"`
	RefundedAmount    int64 `gorm:"not null;default:0" json:"refunded_amount"`
	CreditedAmount    int64 `gorm:"not null;default:0" json:"credited_amount"`
	ChargedBackAmount int64 `gorm:"not null;default:0" json:"charged_back_amount"`

	StateName            string `gorm:"not null" json:"state_name"`
	LastSuccessStateName string `gorm:"column:last_success_state_name" json:"last_success_state_name,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// ChargebackableAmount is the settled balance a dispute can still claw back.
func (p *Payment) ChargebackableAmount() int64 {
	return p.PurchasedAmount + p.CapturedAmount - p.RefundedAmount - p.ChargedBackAmount
}

// PaymentTransaction is one attempt; rows are append-only except for
// status resolution.
type PaymentTransaction struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	PaymentID   snowflake.ID    `gorm:"not null;index" json:"payment_id"`
	// ExternalKey is the idempotency key. Not DB-unique: a retry after
	// a terminal failure records a new attempt under the same key, so
	// uniqueness against live attempts is enforced by the service.
	ExternalKey string          `gorm:"not null;index" json:"external_key"`
	Type        TransactionType `gorm:"column:transaction_type;not null" json:"transaction_type"`

	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"not null" json:"currency"`
	// ProcessedAmount is what the processor reports it actually moved;
	// authoritative over Amount once the attempt resolves.
	ProcessedAmount   int64  `gorm:"not null;default:0" json:"processed_amount"`
	ProcessedCurrency string `gorm:"column:processed_currency" json:"processed_currency,omitempty"`

	Status        TransactionStatus `gorm:"not null;index" json:"status"`
	EffectiveDate time.Time         `gorm:"not null" json:"effective_date"`

	GatewayErrorCode string `gorm:"column:gateway_error_code" json:"gateway_error_code,omitempty"`
	GatewayErrorMsg  string `gorm:"column:gateway_error_msg" json:"gateway_error_msg,omitempty"`
	PluginReference  string `gorm:"column:plugin_reference" json:"plugin_reference,omitempty"`
	SecondReference  string `gorm:"column:second_reference" json:"second_reference,omitempty"`

	Properties datatypes.JSON `gorm:"type:jsonb" json:"properties,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }
