// Package janitor reconciles incomplete payment attempts. Transactions
// left PENDING or UNKNOWN past a threshold are re-checked against the
// plugin's authoritative view and moved to whatever it reports; an
// attempt the plugin cannot answer for stays as it is until a later
// pass.
package janitor

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/events"
	"github.com/smallbiznis/paycore/internal/locker"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config   config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Locker   locker.GlobalLocker
	Registry *plugin.Registry
	Repo     domain.Repository
	Outbox   *events.Outbox             `optional:"true"`
	Metrics  *obsmetrics.PaymentMetrics `optional:"true"`
}

type Janitor struct {
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	locker   locker.GlobalLocker
	registry *plugin.Registry
	repo     domain.Repository
	outbox   *events.Outbox
	metrics  *obsmetrics.PaymentMetrics
}

func New(p Params) *Janitor {
	return &Janitor{
		cfg:      p.Config,
		db:       p.DB,
		log:      p.Log.Named("payment.janitor"),
		clock:    p.Clock,
		locker:   p.Locker,
		registry: p.Registry,
		repo:     p.Repo,
		outbox:   p.Outbox,
		metrics:  p.Metrics,
	}
}

func (j *Janitor) RunForever(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil {
			j.log.Warn("janitor run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce scans one batch of incomplete transactions and tries to
// resolve each. Per-transaction failures are joined, not fatal.
func (j *Janitor) RunOnce(ctx context.Context) error {
	cutoff := j.clock.Now().Add(-j.cfg.JanitorThreshold)
	txns, err := j.repo.FindIncompleteTransactionsBefore(ctx, j.db, cutoff, j.cfg.JanitorBatchSize)
	if err != nil {
		return err
	}

	var jobErr error
	for _, txn := range txns {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := j.resolveTransaction(ctx, txn); err != nil {
			jobErr = errors.Join(jobErr, err)
			j.log.Warn("failed to resolve incomplete transaction",
				zap.String("transaction_id", txn.ID.String()),
				zap.Error(err),
			)
		}
	}
	return jobErr
}

func (j *Janitor) resolveTransaction(ctx context.Context, txn *domain.PaymentTransaction) error {
	payment, err := j.repo.FindPayment(ctx, j.db, txn.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return nil
	}

	// Serialize with live operations on the same account. A held lock
	// means an operation is in flight; this attempt waits for the next
	// pass.
	handle, err := j.locker.Lock(ctx, "payment-account-"+payment.AccountID.String(), j.cfg.AccountLockTimeout)
	if err != nil {
		if errors.Is(err, locker.ErrLockTimeout) {
			return nil
		}
		return err
	}
	defer handle.Unlock()

	// Re-read under the lock; an operation may have resolved it.
	current, err := j.repo.FindTransaction(ctx, j.db, txn.ID)
	if err != nil {
		return err
	}
	if current == nil || (current.Status != domain.TransactionStatusPending && current.Status != domain.TransactionStatusUnknown) {
		return nil
	}

	plug, err := j.registry.Get(j.cfg.PluginName)
	if err != nil {
		return err
	}
	infos, err := plug.GetPaymentInfo(ctx, payment.AccountID, payment.ID, nil)
	if err != nil {
		return err
	}

	var info *plugin.TransactionInfo
	for _, candidate := range infos {
		if candidate != nil && candidate.TransactionID == current.ID {
			info = candidate
		}
	}

	status := statusForPluginInfo(info)
	if status == domain.TransactionStatusUnknown || status == current.Status {
		// The plugin has no better answer than what is recorded.
		return nil
	}

	return j.applyResolution(ctx, payment, current, info, status)
}

func (j *Janitor) applyResolution(ctx context.Context, payment *domain.Payment, txn *domain.PaymentTransaction, info *plugin.TransactionInfo, status domain.TransactionStatus) error {
	txn.Status = status
	switch status {
	case domain.TransactionStatusPending, domain.TransactionStatusSuccess, domain.TransactionStatusPaymentFailure:
		txn.ProcessedAmount = info.Amount
		txn.ProcessedCurrency = info.Currency
	default:
		txn.ProcessedAmount = 0
		txn.ProcessedCurrency = ""
	}
	txn.GatewayErrorCode = info.GatewayErrorCode
	txn.GatewayErrorMsg = info.GatewayError
	txn.PluginReference = info.FirstReferenceID
	txn.SecondReference = info.SecondReferenceID

	stateName := domain.StateNameForStatus(txn.Type, status)
	lastSuccess := payment.LastSuccessStateName
	if status == domain.TransactionStatusSuccess {
		lastSuccess = stateName
	}
	// Only move the payment when it is still parked on this attempt;
	// a later operation owns the state otherwise.
	ownsState := payment.StateName == domain.PendingStateName(txn.Type) ||
		payment.StateName == domain.ErroredStateName(txn.Type)

	err := j.db.Transaction(func(tx *gorm.DB) error {
		if err := j.repo.UpdateTransaction(ctx, tx, txn); err != nil {
			return err
		}
		if ownsState {
			if err := j.repo.UpdatePaymentState(ctx, tx, payment.ID, stateName, lastSuccess); err != nil {
				return err
			}
		}
		if err := j.repo.RefreshPaymentAmounts(ctx, tx, payment.ID); err != nil {
			return err
		}
		if j.outbox != nil {
			payload := events.PaymentStateChangedPayload{
				PaymentID:       payment.ID.String(),
				TransactionID:   txn.ID.String(),
				TransactionType: string(txn.Type),
				Status:          string(status),
				StateName:       stateName,
				Amount:          txn.Amount,
				Currency:        txn.Currency,
			}
			event := events.Event{
				AccountID: payment.AccountID,
				Type:      events.EventPaymentStateChanged,
				Payload:   payload.ToMap(),
				DedupeKey: "payment_transaction:" + txn.ID.String() + ":" + string(status),
			}
			if err := j.outbox.PublishTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.metrics.IncJanitorResolved(string(status))
	j.log.Info("resolved incomplete transaction",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

func statusForPluginInfo(info *plugin.TransactionInfo) domain.TransactionStatus {
	if info == nil {
		return domain.TransactionStatusUnknown
	}
	switch info.Status {
	case plugin.StatusProcessed:
		return domain.TransactionStatusSuccess
	case plugin.StatusPending:
		return domain.TransactionStatusPending
	case plugin.StatusError:
		return domain.TransactionStatusPaymentFailure
	case plugin.StatusCanceled:
		return domain.TransactionStatusPluginFailure
	default:
		return domain.TransactionStatusUnknown
	}
}
