package janitor_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/dispatcher"
	"github.com/smallbiznis/paycore/internal/events"
	"github.com/smallbiznis/paycore/internal/janitor"
	"github.com/smallbiznis/paycore/internal/locker"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	"github.com/smallbiznis/paycore/internal/payment/service"
	"github.com/smallbiznis/paycore/internal/plugin"
	"github.com/smallbiznis/paycore/internal/plugin/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:janitor_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		`CREATE TABLE payment_events (
			id INTEGER PRIMARY KEY,
			account_id INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT,
			dedupe_key TEXT,
			published INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			published_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX idx_payment_events_dedupe_key ON payment_events (dedupe_key) WHERE dedupe_key IS NOT NULL`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create schema: %v", err)
		}
	}
	return db
}

type testEnv struct {
	db     *gorm.DB
	svc    domain.Service
	jan    *janitor.Janitor
	plug   *noop.Plugin
	locker *locker.MemoryLocker
	node   *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	cfg := config.Config{
		PluginName:         noop.PluginName,
		PluginTimeout:      2 * time.Second,
		PluginWorkers:      2,
		AccountLockTimeout: 100 * time.Millisecond,
		JanitorInterval:    time.Minute,
		JanitorThreshold:   time.Minute,
		JanitorBatchSize:   10,
	}

	pool := dispatcher.NewPool(cfg.PluginWorkers)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	plug := noop.New()
	lock := locker.NewMemoryLocker()
	registry := plugin.NewRegistry(plug)
	repo := repository.Provide()
	outbox := events.NewOutbox(db, zap.NewNop(), node)

	svc, err := service.New(service.Params{
		Config:   cfg,
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.SystemClock{},
		Locker:   lock,
		Registry: registry,
		Dispatch: dispatcher.New(pool, cfg.PluginTimeout, zap.NewNop()),
		Repo:     repo,
		Outbox:   outbox,
	})
	if err != nil {
		t.Fatalf("failed to build payment service: %v", err)
	}

	jan := janitor.New(janitor.Params{
		Config:   cfg,
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clock.SystemClock{},
		Locker:   lock,
		Registry: registry,
		Repo:     repo,
		Outbox:   outbox,
	})

	return &testEnv{db: db, svc: svc, jan: jan, plug: plug, locker: lock, node: node}
}

// pendingAuthorize records an authorization the plugin answered PENDING,
// backdated so the janitor threshold has elapsed.
func (env *testEnv) pendingAuthorize(t *testing.T, accountID snowflake.ID) *domain.OperationResponse {
	t.Helper()

	env.plug.EnqueueBehavior(noop.Behavior{Status: plugin.StatusPending})
	resp, err := env.svc.Authorize(context.Background(), domain.OperationRequest{
		AccountID:       accountID,
		PaymentMethodID: env.node.Generate(),
		Amount:          100,
		Currency:        "USD",
	})
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	env.backdate(t, resp.Transaction.ID, 2*time.Minute)
	return resp
}

func (env *testEnv) backdate(t *testing.T, txnID snowflake.ID, age time.Duration) {
	t.Helper()
	err := env.db.Exec(
		"UPDATE payment_transactions SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Add(-age), txnID,
	).Error
	if err != nil {
		t.Fatalf("failed to backdate transaction: %v", err)
	}
}

func (env *testEnv) transactionStatus(t *testing.T, txnID snowflake.ID) domain.TransactionStatus {
	t.Helper()
	var status string
	if err := env.db.Raw(
		"SELECT status FROM payment_transactions WHERE id = ?", txnID,
	).Scan(&status).Error; err != nil {
		t.Fatalf("failed to load transaction status: %v", err)
	}
	return domain.TransactionStatus(status)
}

func TestRunOnceResolvesSettledTransaction(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.node.Generate()
	resp := env.pendingAuthorize(t, accountID)

	env.plug.SetPaymentInfo(resp.Payment.ID, []*plugin.TransactionInfo{{
		PaymentID:        resp.Payment.ID,
		TransactionID:    resp.Transaction.ID,
		Amount:           100,
		Currency:         "USD",
		Status:           plugin.StatusProcessed,
		FirstReferenceID: "gw-settled",
	}})

	if err := env.jan.RunOnce(context.Background()); err != nil {
		t.Fatalf("janitor run failed: %v", err)
	}

	if got := env.transactionStatus(t, resp.Transaction.ID); got != domain.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS after reconciliation, got %s", got)
	}

	var payment domain.Payment
	if err := env.db.Raw("SELECT * FROM payments WHERE id = ?", resp.Payment.ID).Scan(&payment).Error; err != nil {
		t.Fatalf("failed to load payment: %v", err)
	}
	if payment.StateName != "AUTHORIZE_SUCCESS" {
		t.Fatalf("expected AUTHORIZE_SUCCESS, got %s", payment.StateName)
	}
	if payment.LastSuccessStateName != "AUTHORIZE_SUCCESS" {
		t.Fatalf("expected last success AUTHORIZE_SUCCESS, got %s", payment.LastSuccessStateName)
	}
	if payment.AuthorizedAmount != 100 {
		t.Fatalf("expected authorized amount 100, got %d", payment.AuthorizedAmount)
	}

	var eventCount int64
	env.db.Raw(
		"SELECT COUNT(*) FROM payment_events WHERE event_type = ? AND dedupe_key LIKE ?",
		events.EventPaymentStateChanged, "%:SUCCESS",
	).Scan(&eventCount)
	if eventCount != 1 {
		t.Fatalf("expected one resolution event, got %d", eventCount)
	}
}

func TestRunOnceResolvesDeclinedTransaction(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.node.Generate()
	resp := env.pendingAuthorize(t, accountID)

	env.plug.SetPaymentInfo(resp.Payment.ID, []*plugin.TransactionInfo{{
		PaymentID:        resp.Payment.ID,
		TransactionID:    resp.Transaction.ID,
		Amount:           100,
		Currency:         "USD",
		Status:           plugin.StatusError,
		GatewayErrorCode: "card_expired",
	}})

	if err := env.jan.RunOnce(context.Background()); err != nil {
		t.Fatalf("janitor run failed: %v", err)
	}

	if got := env.transactionStatus(t, resp.Transaction.ID); got != domain.TransactionStatusPaymentFailure {
		t.Fatalf("expected PAYMENT_FAILURE after reconciliation, got %s", got)
	}

	var payment domain.Payment
	if err := env.db.Raw("SELECT * FROM payments WHERE id = ?", resp.Payment.ID).Scan(&payment).Error; err != nil {
		t.Fatalf("failed to load payment: %v", err)
	}
	if payment.StateName != "AUTHORIZE_FAILED" {
		t.Fatalf("expected AUTHORIZE_FAILED, got %s", payment.StateName)
	}
	if payment.AuthorizedAmount != 0 {
		t.Fatalf("a declined authorization must not settle, got %d", payment.AuthorizedAmount)
	}
}

func TestRunOnceLeavesUnansweredTransactionAlone(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.node.Generate()
	resp := env.pendingAuthorize(t, accountID)

	// The plugin has no record of the attempt.
	env.plug.SetPaymentInfo(resp.Payment.ID, nil)

	if err := env.jan.RunOnce(context.Background()); err != nil {
		t.Fatalf("janitor run failed: %v", err)
	}

	if got := env.transactionStatus(t, resp.Transaction.ID); got != domain.TransactionStatusPending {
		t.Fatalf("expected the transaction untouched, got %s", got)
	}
}

func TestRunOnceSkipsYoungTransactions(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.node.Generate()

	env.plug.EnqueueBehavior(noop.Behavior{Status: plugin.StatusPending})
	resp, err := env.svc.Authorize(context.Background(), domain.OperationRequest{
		AccountID:       accountID,
		PaymentMethodID: env.node.Generate(),
		Amount:          100,
		Currency:        "USD",
	})
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}

	env.plug.SetPaymentInfo(resp.Payment.ID, []*plugin.TransactionInfo{{
		PaymentID:     resp.Payment.ID,
		TransactionID: resp.Transaction.ID,
		Amount:        100,
		Currency:      "USD",
		Status:        plugin.StatusProcessed,
	}})

	if err := env.jan.RunOnce(context.Background()); err != nil {
		t.Fatalf("janitor run failed: %v", err)
	}

	// Too recent to reconcile; a live operation may still own it.
	if got := env.transactionStatus(t, resp.Transaction.ID); got != domain.TransactionStatusPending {
		t.Fatalf("expected the transaction untouched, got %s", got)
	}
}

func TestRunOnceSkipsLockedAccounts(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.node.Generate()
	resp := env.pendingAuthorize(t, accountID)

	env.plug.SetPaymentInfo(resp.Payment.ID, []*plugin.TransactionInfo{{
		PaymentID:     resp.Payment.ID,
		TransactionID: resp.Transaction.ID,
		Amount:        100,
		Currency:      "USD",
		Status:        plugin.StatusProcessed,
	}})

	handle, err := env.locker.Lock(context.Background(), "payment-account-"+accountID.String(), time.Second)
	if err != nil {
		t.Fatalf("failed to take the account lock: %v", err)
	}
	defer handle.Unlock()

	if err := env.jan.RunOnce(context.Background()); err != nil {
		t.Fatalf("janitor run must skip locked accounts, got %v", err)
	}
	if got := env.transactionStatus(t, resp.Transaction.ID); got != domain.TransactionStatusPending {
		t.Fatalf("expected the transaction untouched while locked, got %s", got)
	}

	handle.Unlock()
	if err := env.jan.RunOnce(context.Background()); err != nil {
		t.Fatalf("janitor run failed: %v", err)
	}
	if got := env.transactionStatus(t, resp.Transaction.ID); got != domain.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS after the lock was released, got %s", got)
	}
}

func TestRunOnceDoesNotStealPaymentState(t *testing.T) {
	env := newTestEnv(t)
	accountID := env.node.Generate()
	resp := env.pendingAuthorize(t, accountID)

	// A later operation moved the payment on; the janitor may resolve the
	// transaction but must not touch the payment state.
	if err := env.db.Exec(
		"UPDATE payments SET state_name = ? WHERE id = ?",
		"CAPTURE_SUCCESS", resp.Payment.ID,
	).Error; err != nil {
		t.Fatalf("failed to move payment state: %v", err)
	}

	env.plug.SetPaymentInfo(resp.Payment.ID, []*plugin.TransactionInfo{{
		PaymentID:     resp.Payment.ID,
		TransactionID: resp.Transaction.ID,
		Amount:        100,
		Currency:      "USD",
		Status:        plugin.StatusProcessed,
	}})

	if err := env.jan.RunOnce(context.Background()); err != nil {
		t.Fatalf("janitor run failed: %v", err)
	}

	if got := env.transactionStatus(t, resp.Transaction.ID); got != domain.TransactionStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", got)
	}
	var stateName string
	env.db.Raw("SELECT state_name FROM payments WHERE id = ?", resp.Payment.ID).Scan(&stateName)
	if stateName != "CAPTURE_SUCCESS" {
		t.Fatalf("janitor must not overwrite a later state, got %s", stateName)
	}

	// The aggregate still reflects the settled authorization.
	var authorized int64
	env.db.Raw("SELECT authorized_amount FROM payments WHERE id = ?", resp.Payment.ID).Scan(&authorized)
	if authorized != 100 {
		t.Fatalf("expected authorized amount 100, got %d", authorized)
	}
}
