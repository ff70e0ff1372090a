package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists payments and their transactions. The db handle is
// passed per call so service code can run methods inside a transaction.
type Repository interface {
	CreatePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*Payment, error)
	FindPaymentByExternalKey(ctx context.Context, db *gorm.DB, externalKey string) (*Payment, error)
	UpdatePaymentState(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, stateName, lastSuccessStateName string) error
	// RefreshPaymentAmounts recomputes the aggregate amount columns
	// from the payment's transaction rows.
	RefreshPaymentAmounts(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) error

	CreateTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	UpdateTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	FindTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*PaymentTransaction, error)
	FindTransactionsForPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*PaymentTransaction, error)
	FindTransactionsByExternalKey(ctx context.Context, db *gorm.DB, externalKey string) ([]*PaymentTransaction, error)
	// FindIncompleteTransactionsBefore returns PENDING and UNKNOWN
	// transactions last touched before the cutoff, oldest first.
	FindIncompleteTransactionsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*PaymentTransaction, error)
}
