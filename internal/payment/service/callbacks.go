package service

import (
	"context"

	"github.com/smallbiznis/paycore/internal/automaton"
	"github.com/smallbiznis/paycore/internal/events"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
	"gorm.io/gorm"
)

// leaving validates the attempt against the payment's history and
// records the PENDING row. A failure here aborts the run with nothing
// written; completions skip it because their row already exists.
func (s *Service) leaving(sc *stateContext) automaton.LeavingStateCallback {
	return func(ctx context.Context, from automaton.State) error {
		if sc.completion {
			sc.persisted = true
			return nil
		}
		if err := s.validateAttempt(ctx, sc); err != nil {
			return err
		}
		return s.persistAttempt(ctx, sc)
	}
}

func (s *Service) validateAttempt(ctx context.Context, sc *stateContext) error {
	var history []*domain.PaymentTransaction
	if sc.payment != nil {
		txns, err := s.repo.FindTransactionsForPayment(ctx, s.db, sc.payment.ID)
		if err != nil {
			return domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load transactions", err)
		}
		history = txns
	}

	if err := validatePrecondition(sc.typ, history); err != nil {
		return err
	}
	if err := s.validateTransactionKey(ctx, sc); err != nil {
		return err
	}

	// A dispute exceeding the settled balance is decided locally; the
	// attempt is still recorded, as a declined chargeback.
	if sc.typ == domain.TransactionTypeChargeback && sc.attemptAmount > sc.payment.ChargebackableAmount() {
		sc.localInfo = &plugin.TransactionInfo{
			PaymentID:        sc.payment.ID,
			Amount:           sc.attemptAmount,
			Currency:         sc.currency,
			Status:           plugin.StatusError,
			GatewayErrorCode: "INSUFFICIENT_BALANCE",
			GatewayError:     "chargeback amount exceeds the settled balance",
			CreatedAt:        s.clock.Now(),
		}
	}
	return nil
}

// validatePrecondition checks that the payment's history supports the
// requested operation.
func validatePrecondition(typ domain.TransactionType, history []*domain.PaymentTransaction) error {
	hasSuccess := func(types ...domain.TransactionType) bool {
		for _, txn := range history {
			if txn.Status != domain.TransactionStatusSuccess {
				continue
			}
			for _, t := range types {
				if txn.Type == t {
					return true
				}
			}
		}
		return false
	}

	switch typ {
	case domain.TransactionTypeCapture, domain.TransactionTypeVoid:
		if !hasSuccess(domain.TransactionTypeAuthorize) {
			return domain.ErrInvalidStateTransition
		}
	case domain.TransactionTypeRefund:
		if !hasSuccess(domain.TransactionTypeCapture, domain.TransactionTypePurchase) {
			return domain.ErrInvalidStateTransition
		}
	case domain.TransactionTypeChargeback:
		for _, txn := range history {
			if txn.Status == domain.TransactionStatusSuccess {
				return nil
			}
		}
		return domain.ErrNoSuchSuccessPayment
	}
	return nil
}

// validateTransactionKey enforces idempotency on the transaction
// external key. A key already used by a live or successful attempt is a
// conflict; a terminal failure frees the key for a retry on the same
// payment. Chargebacks are the exception: the successful transaction
// they reference is their precondition, not a conflict.
func (s *Service) validateTransactionKey(ctx context.Context, sc *stateContext) error {
	key := sc.req.TransactionExternalKey
	if key == "" {
		return nil
	}
	priors, err := s.repo.FindTransactionsByExternalKey(ctx, s.db, key)
	if err != nil {
		return domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load transactions", err)
	}
	for _, prior := range priors {
		samePayment := sc.payment != nil && prior.PaymentID == sc.payment.ID
		if !samePayment {
			return domain.ErrActiveTransactionKeyExists
		}
		if sc.typ == domain.TransactionTypeChargeback && prior.Status == domain.TransactionStatusSuccess {
			continue
		}
		if prior.Status.IsTerminalFailure() {
			continue
		}
		return domain.ErrActiveTransactionKeyExists
	}
	return nil
}

// persistAttempt writes the payment (when new) and the PENDING attempt
// row, atomically, before any plugin call.
func (s *Service) persistAttempt(ctx context.Context, sc *stateContext) error {
	now := s.clock.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if sc.payment == nil {
			id := s.genID.Generate()
			key := sc.req.PaymentExternalKey
			if key == "" {
				key = id.String()
			}
			payment := &domain.Payment{
				ID:              id,
				AccountID:       sc.req.AccountID,
				PaymentMethodID: sc.req.PaymentMethodID,
				ExternalKey:     key,
				Currency:        sc.currency,
				StateName:       domain.InitStateName(sc.typ),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.repo.CreatePayment(ctx, tx, payment); err != nil {
				return err
			}
			sc.payment = payment
			sc.newPayment = true
		}

		txnID := s.genID.Generate()
		key := sc.req.TransactionExternalKey
		if key == "" {
			key = txnID.String()
		}
		txn := &domain.PaymentTransaction{
			ID:            txnID,
			PaymentID:     sc.payment.ID,
			ExternalKey:   key,
			Type:          sc.typ,
			Amount:        sc.attemptAmount,
			Currency:      sc.currency,
			Status:        domain.TransactionStatusPending,
			EffectiveDate: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.CreateTransaction(ctx, tx, txn); err != nil {
			return err
		}
		sc.txn = txn
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "record payment attempt", err)
	}
	sc.persisted = true
	return nil
}

// entering records the outcome: transaction status, payment state and
// refreshed aggregates, plus the lifecycle event, in one transaction.
// It runs for every outcome, including EXCEPTION.
func (s *Service) entering(sc *stateContext) automaton.EnteringStateCallback {
	return func(ctx context.Context, to automaton.State, result automaton.OperationResult) error {
		status := statusForPluginInfo(sc.info)
		if sc.pluginErr != nil {
			status = domain.TransactionStatusPluginFailure
		}
		sc.finalStatus = status

		processedAmount, processedCurrency := processedAmountFor(status, sc.info)
		sc.txn.Status = status
		sc.txn.ProcessedAmount = processedAmount
		sc.txn.ProcessedCurrency = processedCurrency
		if sc.pluginErr != nil {
			sc.txn.GatewayErrorCode = sc.pluginErr.Code
			sc.txn.GatewayErrorMsg = sc.pluginErr.Message
		} else if sc.info != nil {
			sc.txn.GatewayErrorCode = sc.info.GatewayErrorCode
			sc.txn.GatewayErrorMsg = sc.info.GatewayError
			sc.txn.PluginReference = sc.info.FirstReferenceID
			sc.txn.SecondReference = sc.info.SecondReferenceID
		}

		lastSuccess := sc.payment.LastSuccessStateName
		if result == automaton.OperationResultSuccess {
			lastSuccess = to.Name
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.repo.UpdateTransaction(ctx, tx, sc.txn); err != nil {
				return err
			}
			if err := s.repo.UpdatePaymentState(ctx, tx, sc.payment.ID, to.Name, lastSuccess); err != nil {
				return err
			}
			if err := s.repo.RefreshPaymentAmounts(ctx, tx, sc.payment.ID); err != nil {
				return err
			}
			if s.outbox != nil {
				payload := events.PaymentStateChangedPayload{
					PaymentID:       sc.payment.ID.String(),
					TransactionID:   sc.txn.ID.String(),
					TransactionType: string(sc.typ),
					Status:          string(status),
					StateName:       to.Name,
					Amount:          sc.txn.Amount,
					Currency:        sc.txn.Currency,
				}
				event := events.Event{
					AccountID: sc.payment.AccountID,
					Type:      events.EventPaymentStateChanged,
					Payload:   payload.ToMap(),
					DedupeKey: "payment_transaction:" + sc.txn.ID.String() + ":" + string(status),
				}
				if err := s.outbox.PublishTx(ctx, tx, event); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "record payment outcome", err)
		}

		sc.payment.StateName = to.Name
		sc.payment.LastSuccessStateName = lastSuccess
		s.metrics.IncOperation(string(sc.typ), string(status))
		return nil
	}
}
