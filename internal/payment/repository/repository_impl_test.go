package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:paymentrepo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := []string{
		`CREATE TABLE payments (
			id INTEGER PRIMARY KEY,
			account_id INTEGER NOT NULL,
			payment_method_id INTEGER NOT NULL,
			external_key TEXT NOT NULL UNIQUE,
			currency TEXT NOT NULL,
			authorized_amount INTEGER NOT NULL DEFAULT 0,
			captured_amount INTEGER NOT NULL DEFAULT 0,
			purchased_amount INTEGER NOT NULL DEFAULT 0,
			refunded_amount INTEGER NOT NULL DEFAULT 0,
			credited_amount INTEGER NOT NULL DEFAULT 0,
			charged_back_amount INTEGER NOT NULL DEFAULT 0,
			state_name TEXT NOT NULL,
			last_success_state_name TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE payment_transactions (
			id INTEGER PRIMARY KEY,
			payment_id INTEGER NOT NULL,
			external_key TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			processed_amount INTEGER NOT NULL DEFAULT 0,
			processed_currency TEXT,
			status TEXT NOT NULL,
			effective_date TIMESTAMP NOT NULL,
			gateway_error_code TEXT,
			gateway_error_msg TEXT,
			plugin_reference TEXT,
			second_reference TEXT,
			properties TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create schema: %v", err)
		}
	}
	return db
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	return node
}

func seedPayment(t *testing.T, db *gorm.DB, repo domain.Repository, node *snowflake.Node) *domain.Payment {
	t.Helper()
	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:              node.Generate(),
		AccountID:       node.Generate(),
		PaymentMethodID: node.Generate(),
		ExternalKey:     "pay-" + node.Generate().String(),
		Currency:        "USD",
		StateName:       "PURCHASE_INIT",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repo.CreatePayment(context.Background(), db, payment); err != nil {
		t.Fatalf("failed to seed payment: %v", err)
	}
	return payment
}

func seedTransaction(t *testing.T, db *gorm.DB, repo domain.Repository, node *snowflake.Node,
	paymentID snowflake.ID, typ domain.TransactionType, status domain.TransactionStatus,
	processedAmount int64, updatedAt time.Time) *domain.PaymentTransaction {
	t.Helper()

	id := node.Generate()
	txn := &domain.PaymentTransaction{
		ID:                id,
		PaymentID:         paymentID,
		ExternalKey:       "txn-" + id.String(),
		Type:              typ,
		Amount:            processedAmount,
		Currency:          "USD",
		ProcessedAmount:   processedAmount,
		ProcessedCurrency: "USD",
		Status:            status,
		EffectiveDate:     updatedAt,
		CreatedAt:         updatedAt,
		UpdatedAt:         updatedAt,
	}
	if err := repo.CreateTransaction(context.Background(), db, txn); err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	// CreateTransaction binds updated_at from the struct, but make the
	// intent explicit for rows the queries filter on.
	if err := db.Exec(
		"UPDATE payment_transactions SET updated_at = ? WHERE id = ?", updatedAt, id,
	).Error; err != nil {
		t.Fatalf("failed to set updated_at: %v", err)
	}
	return txn
}

func TestRefreshPaymentAmountsSumsOnlySuccesses(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.Provide()
	node := newNode(t)
	ctx := context.Background()
	now := time.Now().UTC()

	payment := seedPayment(t, db, repo, node)

	seedTransaction(t, db, repo, node, payment.ID, domain.TransactionTypePurchase, domain.TransactionStatusSuccess, 100, now)
	seedTransaction(t, db, repo, node, payment.ID, domain.TransactionTypePurchase, domain.TransactionStatusSuccess, 50, now)
	// Declined and unresolved attempts must not count.
	seedTransaction(t, db, repo, node, payment.ID, domain.TransactionTypePurchase, domain.TransactionStatusPaymentFailure, 40, now)
	seedTransaction(t, db, repo, node, payment.ID, domain.TransactionTypeRefund, domain.TransactionStatusUnknown, 30, now)
	seedTransaction(t, db, repo, node, payment.ID, domain.TransactionTypeRefund, domain.TransactionStatusSuccess, 20, now)
	seedTransaction(t, db, repo, node, payment.ID, domain.TransactionTypeChargeback, domain.TransactionStatusSuccess, 10, now)

	if err := repo.RefreshPaymentAmounts(ctx, db, payment.ID); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	got, err := repo.FindPayment(ctx, db, payment.ID)
	if err != nil || got == nil {
		t.Fatalf("failed to reload payment: %v", err)
	}
	if got.PurchasedAmount != 150 {
		t.Fatalf("expected purchased amount 150, got %d", got.PurchasedAmount)
	}
	if got.RefundedAmount != 20 {
		t.Fatalf("expected refunded amount 20, got %d", got.RefundedAmount)
	}
	if got.ChargedBackAmount != 10 {
		t.Fatalf("expected charged back amount 10, got %d", got.ChargedBackAmount)
	}
	if got.ChargebackableAmount() != 120 {
		t.Fatalf("expected chargebackable amount 120, got %d", got.ChargebackableAmount())
	}
}

func TestFindIncompleteTransactionsBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.Provide()
	node := newNode(t)
	ctx := context.Background()
	now := time.Now().UTC()

	payment := seedPayment(t, db, repo, node)

	oldPending := seedTransaction(t, db, repo, node, payment.ID,
		domain.TransactionTypeAuthorize, domain.TransactionStatusPending, 0, now.Add(-time.Hour))
	oldUnknown := seedTransaction(t, db, repo, node, payment.ID,
		domain.TransactionTypeCapture, domain.TransactionStatusUnknown, 0, now.Add(-30*time.Minute))
	// Resolved or recent rows are out of scope.
	seedTransaction(t, db, repo, node, payment.ID,
		domain.TransactionTypePurchase, domain.TransactionStatusSuccess, 100, now.Add(-time.Hour))
	seedTransaction(t, db, repo, node, payment.ID,
		domain.TransactionTypeRefund, domain.TransactionStatusPending, 0, now)

	txns, err := repo.FindIncompleteTransactionsBefore(ctx, db, now.Add(-15*time.Minute), 10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 incomplete transactions, got %d", len(txns))
	}
	// Oldest first.
	if txns[0].ID != oldPending.ID || txns[1].ID != oldUnknown.ID {
		t.Fatalf("unexpected order: %s, %s", txns[0].ID, txns[1].ID)
	}

	limited, err := repo.FindIncompleteTransactionsBefore(ctx, db, now.Add(-15*time.Minute), 1)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != oldPending.ID {
		t.Fatalf("expected only the oldest row, got %d rows", len(limited))
	}
}

func TestFindPaymentReturnsNilWhenMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.Provide()
	node := newNode(t)
	ctx := context.Background()

	payment, err := repo.FindPayment(ctx, db, node.Generate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment != nil {
		t.Fatalf("expected nil for a missing payment, got %+v", payment)
	}

	txn, err := repo.FindTransaction(ctx, db, node.Generate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn != nil {
		t.Fatalf("expected nil for a missing transaction, got %+v", txn)
	}
}

func TestUpdateTransactionResolvesRow(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.Provide()
	node := newNode(t)
	ctx := context.Background()
	now := time.Now().UTC()

	payment := seedPayment(t, db, repo, node)
	txn := seedTransaction(t, db, repo, node, payment.ID,
		domain.TransactionTypePurchase, domain.TransactionStatusPending, 0, now)

	txn.Status = domain.TransactionStatusSuccess
	txn.ProcessedAmount = 100
	txn.ProcessedCurrency = "USD"
	txn.PluginReference = "gw-1"
	if err := repo.UpdateTransaction(ctx, db, txn); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := repo.FindTransaction(ctx, db, txn.ID)
	if err != nil || got == nil {
		t.Fatalf("failed to reload transaction: %v", err)
	}
	if got.Status != domain.TransactionStatusSuccess || got.ProcessedAmount != 100 || got.PluginReference != "gw-1" {
		t.Fatalf("row not resolved: %+v", got)
	}
}
