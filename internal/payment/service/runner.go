package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/paycore/internal/dispatcher"
	"github.com/smallbiznis/paycore/internal/events"
	"github.com/smallbiznis/paycore/internal/locker"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
	"go.uber.org/zap"
)

// run drives one operation end to end: acquire the account lock,
// resolve the payment, walk the state machine with the leaving, work
// and entering callbacks, and translate the outcome.
func (s *Service) run(ctx context.Context, typ domain.TransactionType, req domain.OperationRequest, completion bool) (*domain.OperationResponse, error) {
	if req.AccountID == 0 {
		return nil, domain.NewError(domain.ErrorKindCaller, "PAYMENT_INVALID_ACCOUNT", "account id is required")
	}
	if req.CallOrigin == "" {
		req.CallOrigin = domain.CallOriginAPI
	}

	lockStart := s.clock.Now()
	handle, err := s.locker.Lock(ctx, "payment-account-"+req.AccountID.String(), s.cfg.AccountLockTimeout)
	if err != nil {
		if errors.Is(err, locker.ErrLockTimeout) {
			s.metrics.IncLockTimeout()
			return nil, domain.WrapError(domain.ErrorKindLockTimeout, domain.ErrLockTimeout.Code, "timed out waiting for the account lock", err)
		}
		return nil, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "acquire account lock", err)
	}
	defer handle.Unlock()
	s.metrics.ObserveLockWait(s.clock.Now().Sub(lockStart))

	sc, err := s.resolveContext(ctx, typ, req, completion)
	if err != nil {
		mapped := s.mapRunError(sc, err)
		s.emitErrorEvent(sc, typ, req, mapped)
		return nil, mapped
	}

	machine := s.machines[sc.typ]
	fromState := domain.InitStateName(sc.typ)
	if sc.completion {
		fromState = domain.PendingStateName(sc.typ)
	}

	opStart := s.clock.Now()
	_, _, runErr := machine.RunOperation(ctx, fromState, operationName(sc.typ),
		s.work(sc), s.leaving(sc), s.entering(sc))
	s.metrics.ObserveOperationDuration(string(sc.typ), s.clock.Now().Sub(opStart))

	if runErr != nil {
		mapped := s.mapRunError(sc, runErr)
		if !sc.persisted {
			s.emitErrorEvent(sc, sc.typ, req, mapped)
		}
		s.log.Warn("payment operation failed",
			zap.String("transaction_type", string(sc.typ)),
			zap.String("account_id", req.AccountID.String()),
			zap.Error(mapped),
		)
		return nil, mapped
	}

	payment, err := s.repo.FindPayment(ctx, s.db, sc.payment.ID)
	if err != nil || payment == nil {
		return nil, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "reload payment", err)
	}
	txn, err := s.repo.FindTransaction(ctx, s.db, sc.txn.ID)
	if err != nil || txn == nil {
		return nil, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "reload transaction", err)
	}
	return &domain.OperationResponse{Payment: payment, Transaction: txn}, nil
}

// resolveContext loads the payment and, for completions, the pending
// row, and normalizes amount and currency. Nothing is written here.
func (s *Service) resolveContext(ctx context.Context, typ domain.TransactionType, req domain.OperationRequest, completion bool) (*stateContext, error) {
	sc := &stateContext{typ: typ, req: req, completion: completion}

	if req.PaymentID != 0 {
		payment, err := s.repo.FindPayment(ctx, s.db, req.PaymentID)
		if err != nil {
			return sc, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load payment", err)
		}
		if payment == nil {
			return sc, domain.ErrNoSuchPayment
		}
		sc.payment = payment
	} else if key := strings.TrimSpace(req.PaymentExternalKey); key != "" {
		payment, err := s.repo.FindPaymentByExternalKey(ctx, s.db, key)
		if err != nil {
			return sc, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load payment", err)
		}
		sc.payment = payment
	}
	if sc.payment != nil && sc.payment.AccountID != req.AccountID {
		return sc, domain.NewError(domain.ErrorKindCaller, "PAYMENT_ACCOUNT_MISMATCH", "payment belongs to another account")
	}

	if completion {
		return sc, s.resolvePendingAttempt(ctx, sc)
	}

	switch sc.typ {
	case domain.TransactionTypeAuthorize, domain.TransactionTypePurchase, domain.TransactionTypeCredit:
	default:
		if sc.payment == nil {
			return sc, domain.ErrNoSuchPayment
		}
	}

	if sc.typ == domain.TransactionTypeVoid {
		sc.attemptAmount = 0
	} else {
		if req.Amount <= 0 {
			return sc, domain.ErrInvalidAmount
		}
		sc.attemptAmount = req.Amount
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if sc.payment != nil {
		if currency == "" {
			currency = sc.payment.Currency
		}
		if currency != sc.payment.Currency {
			return sc, domain.ErrCurrencyMismatch
		}
	} else if currency == "" {
		return sc, domain.NewError(domain.ErrorKindCaller, "PAYMENT_INVALID_CURRENCY", "currency is required")
	}
	sc.currency = currency

	return sc, nil
}

// resolvePendingAttempt binds a completion run to its PENDING row; the
// row supplies the transaction type, amount and currency.
func (s *Service) resolvePendingAttempt(ctx context.Context, sc *stateContext) error {
	key := strings.TrimSpace(sc.req.TransactionExternalKey)
	if key == "" {
		return domain.NewError(domain.ErrorKindCaller, "PAYMENT_INVALID_TRANSACTION_KEY", "transaction external key is required")
	}
	txns, err := s.repo.FindTransactionsByExternalKey(ctx, s.db, key)
	if err != nil {
		return domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load transactions", err)
	}
	for i := len(txns) - 1; i >= 0; i-- {
		txn := txns[i]
		if txn.Status != domain.TransactionStatusPending {
			continue
		}
		if sc.payment != nil && txn.PaymentID != sc.payment.ID {
			continue
		}
		sc.txn = txn
		break
	}
	if sc.txn == nil {
		return domain.ErrNoPendingTransaction
	}
	if sc.payment == nil {
		payment, err := s.repo.FindPayment(ctx, s.db, sc.txn.PaymentID)
		if err != nil || payment == nil {
			return domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load payment for pending transaction", err)
		}
		if payment.AccountID != sc.req.AccountID {
			return domain.NewError(domain.ErrorKindCaller, "PAYMENT_ACCOUNT_MISMATCH", "payment belongs to another account")
		}
		sc.payment = payment
	}
	sc.typ = sc.txn.Type
	sc.attemptAmount = sc.txn.Amount
	sc.currency = sc.txn.Currency
	return nil
}

// mapRunError translates callback and plugin failures into the typed
// service error.
func (s *Service) mapRunError(sc *stateContext, err error) error {
	if err == nil {
		return nil
	}
	var domErr *domain.Error
	if errors.As(err, &domErr) {
		return domErr
	}
	var pluginErr *plugin.Error
	if errors.As(err, &pluginErr) {
		return domain.WrapError(domain.ErrorKindPluginFailure,
			"PAYMENT_PLUGIN_BUSINESS_FAILURE", pluginErr.Message, pluginErr)
	}
	if errors.Is(err, dispatcher.ErrDispatchTimeout) {
		return domain.WrapError(domain.ErrorKindUnknownOutcome,
			domain.ErrPluginTimeout.Code, "plugin call timed out; outcome unknown", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.ErrorKindUnknownOutcome,
			domain.ErrUnknownOutcome.Code, "operation interrupted; outcome unknown", err)
	}
	return domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "payment operation failed", err)
}

// emitErrorEvent reports an operation rejected before any row was
// written. Only caller-driven operations emit; system runs log instead.
func (s *Service) emitErrorEvent(sc *stateContext, typ domain.TransactionType, req domain.OperationRequest, err error) {
	if s.outbox == nil || err == nil || req.CallOrigin != domain.CallOriginAPI {
		return
	}
	payload := events.PaymentErrorPayload{
		TransactionType: string(typ),
		ErrorMessage:    err.Error(),
	}
	var domErr *domain.Error
	if errors.As(err, &domErr) {
		payload.ErrorCode = domErr.Code
		payload.ErrorMessage = domErr.Message
	}
	if sc != nil && sc.payment != nil {
		payload.PaymentID = sc.payment.ID.String()
	}
	event := events.Event{
		AccountID: req.AccountID,
		Type:      events.EventPaymentError,
		Payload:   payload.ToMap(),
	}
	go func() {
		if err := s.outbox.Publish(context.Background(), event); err != nil {
			s.log.Warn("failed to publish payment error event", zap.Error(err))
		}
	}()
}
