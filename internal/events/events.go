// Package events provides a transactional outbox for payment lifecycle
// events. Events are written to the payment_events table, in the same
// transaction as the state change when PublishTx is used, and consumed
// by downstream pollers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// EventPaymentStateChanged signals that an operation completed and
	// the payment reached a new state, whatever the transaction status.
	EventPaymentStateChanged = "payment.state_changed"
	// EventPaymentError signals that an operation was rejected before
	// any state change was recorded.
	EventPaymentError = "payment.error"
)

// Event is one outbox entry.
type Event struct {
	AccountID snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

// PaymentStateChangedPayload is the payload of EventPaymentStateChanged.
type PaymentStateChangedPayload struct {
	PaymentID       string
	TransactionID   string
	TransactionType string
	Status          string
	StateName       string
	Amount          int64
	Currency        string
}

func (p PaymentStateChangedPayload) ToMap() map[string]any {
	return map[string]any{
		"payment_id":       p.PaymentID,
		"transaction_id":   p.TransactionID,
		"transaction_type": p.TransactionType,
		"status":           p.Status,
		"state_name":       p.StateName,
		"amount":           p.Amount,
		"currency":         p.Currency,
	}
}

// PaymentErrorPayload is the payload of EventPaymentError.
type PaymentErrorPayload struct {
	PaymentID       string
	TransactionType string
	ErrorCode       string
	ErrorMessage    string
}

func (p PaymentErrorPayload) ToMap() map[string]any {
	return map[string]any{
		"payment_id":       p.PaymentID,
		"transaction_type": p.TransactionType,
		"error_code":       p.ErrorCode,
		"error_message":    p.ErrorMessage,
	}
}

// Outbox persists events into payment_events.
type Outbox struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewOutbox(gdb *gorm.DB, log *zap.Logger, genID *snowflake.Node) *Outbox {
	return &Outbox{
		db:    gdb,
		log:   log.Named("payment.outbox"),
		genID: genID,
	}
}

// Publish writes the event outside of any caller transaction.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	return o.PublishTx(ctx, o.db, event)
}

// PublishTx writes the event within the caller's transaction so the
// event commits atomically with the state change. A duplicate dedupe
// key is treated as already published.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	var dedupeKey any
	if event.DedupeKey != "" {
		dedupeKey = event.DedupeKey
	}

	err = tx.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, account_id, event_type, payload, dedupe_key, published, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.genID.Generate(),
		event.AccountID,
		event.Type,
		string(payload),
		dedupeKey,
		false,
		time.Now().UTC(),
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			o.log.Debug("event already published",
				zap.String("event_type", event.Type),
				zap.String("dedupe_key", event.DedupeKey),
			)
			return nil
		}
		return err
	}
	return nil
}
