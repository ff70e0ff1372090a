package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreatePayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, account_id, payment_method_id, external_key, currency,
			authorized_amount, captured_amount, purchased_amount,
			refunded_amount, credited_amount, charged_back_amount,
			state_name, last_success_state_name, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.AccountID,
		payment.PaymentMethodID,
		payment.ExternalKey,
		payment.Currency,
		payment.AuthorizedAmount,
		payment.CapturedAmount,
		payment.PurchasedAmount,
		payment.RefundedAmount,
		payment.CreditedAmount,
		payment.ChargedBackAmount,
		payment.StateName,
		payment.LastSuccessStateName,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_method_id, external_key, currency,
			authorized_amount, captured_amount, purchased_amount,
			refunded_amount, credited_amount, charged_back_amount,
			state_name, last_success_state_name, created_at, updated_at
		 FROM payments WHERE id = ?`,
		paymentID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) FindPaymentByExternalKey(ctx context.Context, db *gorm.DB, externalKey string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, payment_method_id, external_key, currency,
			authorized_amount, captured_amount, purchased_amount,
			refunded_amount, credited_amount, charged_back_amount,
			state_name, last_success_state_name, created_at, updated_at
		 FROM payments WHERE external_key = ?`,
		externalKey,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) UpdatePaymentState(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, stateName, lastSuccessStateName string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state_name = ?, last_success_state_name = ?, updated_at = ?
		 WHERE id = ?`,
		stateName,
		lastSuccessStateName,
		time.Now().UTC(),
		paymentID,
	).Error
}

// RefreshPaymentAmounts recomputes aggregates from processed amounts.
// Only resolved attempts count: PENDING, SUCCESS and PAYMENT_FAILURE
// rows carry an authoritative processed_amount, UNKNOWN rows do not.
func (r *repo) RefreshPaymentAmounts(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET
			authorized_amount = (
				SELECT COALESCE(SUM(processed_amount), 0) FROM payment_transactions
				WHERE payment_id = ? AND transaction_type = 'AUTHORIZE' AND status = 'SUCCESS'
			),
			captured_amount = (
				SELECT COALESCE(SUM(processed_amount), 0) FROM payment_transactions
				WHERE payment_id = ? AND transaction_type = 'CAPTURE' AND status = 'SUCCESS'
			),
			purchased_amount = (
				SELECT COALESCE(SUM(processed_amount), 0) FROM payment_transactions
				WHERE payment_id = ? AND transaction_type = 'PURCHASE' AND status = 'SUCCESS'
			),
			refunded_amount = (
				SELECT COALESCE(SUM(processed_amount), 0) FROM payment_transactions
				WHERE payment_id = ? AND transaction_type = 'REFUND' AND status = 'SUCCESS'
			),
			credited_amount = (
				SELECT COALESCE(SUM(processed_amount), 0) FROM payment_transactions
				WHERE payment_id = ? AND transaction_type = 'CREDIT' AND status = 'SUCCESS'
			),
			charged_back_amount = (
				SELECT COALESCE(SUM(processed_amount), 0) FROM payment_transactions
				WHERE payment_id = ? AND transaction_type = 'CHARGEBACK' AND status = 'SUCCESS'
			),
			updated_at = ?
		 WHERE id = ?`,
		paymentID,
		paymentID,
		paymentID,
		paymentID,
		paymentID,
		paymentID,
		time.Now().UTC(),
		paymentID,
	).Error
}

func (r *repo) CreateTransaction(ctx context.Context, db *gorm.DB, txn *domain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (
			id, payment_id, external_key, transaction_type, amount, currency,
			processed_amount, processed_currency, status, effective_date,
			gateway_error_code, gateway_error_msg, plugin_reference,
			second_reference, properties, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.PaymentID,
		txn.ExternalKey,
		txn.Type,
		txn.Amount,
		txn.Currency,
		txn.ProcessedAmount,
		txn.ProcessedCurrency,
		txn.Status,
		txn.EffectiveDate,
		txn.GatewayErrorCode,
		txn.GatewayErrorMsg,
		txn.PluginReference,
		txn.SecondReference,
		txn.Properties,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repo) UpdateTransaction(ctx context.Context, db *gorm.DB, txn *domain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, processed_amount = ?, processed_currency = ?,
			gateway_error_code = ?, gateway_error_msg = ?,
			plugin_reference = ?, second_reference = ?, updated_at = ?
		 WHERE id = ?`,
		txn.Status,
		txn.ProcessedAmount,
		txn.ProcessedCurrency,
		txn.GatewayErrorCode,
		txn.GatewayErrorMsg,
		txn.PluginReference,
		txn.SecondReference,
		time.Now().UTC(),
		txn.ID,
	).Error
}

func (r *repo) FindTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*domain.PaymentTransaction, error) {
	var txn domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, external_key, transaction_type, amount, currency,
			processed_amount, processed_currency, status, effective_date,
			gateway_error_code, gateway_error_msg, plugin_reference,
			second_reference, properties, created_at, updated_at
		 FROM payment_transactions WHERE id = ?`,
		transactionID,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) FindTransactionsForPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*domain.PaymentTransaction, error) {
	var txns []*domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, external_key, transaction_type, amount, currency,
			processed_amount, processed_currency, status, effective_date,
			gateway_error_code, gateway_error_msg, plugin_reference,
			second_reference, properties, created_at, updated_at
		 FROM payment_transactions
		 WHERE payment_id = ?
		 ORDER BY effective_date ASC, id ASC`,
		paymentID,
	).Scan(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) FindTransactionsByExternalKey(ctx context.Context, db *gorm.DB, externalKey string) ([]*domain.PaymentTransaction, error) {
	var txns []*domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, external_key, transaction_type, amount, currency,
			processed_amount, processed_currency, status, effective_date,
			gateway_error_code, gateway_error_msg, plugin_reference,
			second_reference, properties, created_at, updated_at
		 FROM payment_transactions
		 WHERE external_key = ?
		 ORDER BY effective_date ASC, id ASC`,
		externalKey,
	).Scan(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) FindIncompleteTransactionsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []*domain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, external_key, transaction_type, amount, currency,
			processed_amount, processed_currency, status, effective_date,
			gateway_error_code, gateway_error_msg, plugin_reference,
			second_reference, properties, created_at, updated_at
		 FROM payment_transactions
		 WHERE status IN ('PENDING', 'UNKNOWN') AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		cutoff,
		limit,
	).Scan(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
