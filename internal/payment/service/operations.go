package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/paycore/internal/automaton"
	"github.com/smallbiznis/paycore/internal/dispatcher"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
)

// work calls the plugin through the dispatcher and reports the state
// machine result. Every returned error forces EXCEPTION; the entering
// callback still records the attempt.
func (s *Service) work(sc *stateContext) automaton.OperationCallback {
	return func(ctx context.Context) (automaton.OperationResult, error) {
		if sc.localInfo != nil {
			sc.info = sc.localInfo
			return resultForPluginStatus(sc.info.Status), nil
		}

		plug, err := s.registry.Get(s.cfg.PluginName)
		if err != nil {
			return automaton.OperationResultException, err
		}
		call := callForType(plug, sc.typ)
		if call == nil {
			return automaton.OperationResultException, domain.ErrInvalidStateTransition
		}

		preq := plugin.TransactionRequest{
			AccountID:       sc.payment.AccountID,
			PaymentID:       sc.payment.ID,
			TransactionID:   sc.txn.ID,
			PaymentMethodID: sc.payment.PaymentMethodID,
			Amount:          sc.attemptAmount,
			Currency:        sc.currency,
			Properties:      sc.req.Properties,
		}

		info, err := s.dispatch.Dispatch(ctx, func(ctx context.Context) (*plugin.TransactionInfo, error) {
			return call(ctx, preq)
		})
		if err != nil {
			var pluginErr *plugin.Error
			if errors.As(err, &pluginErr) {
				sc.pluginErr = pluginErr
				return automaton.OperationResultException, err
			}
			if errors.Is(err, dispatcher.ErrDispatchTimeout) {
				s.metrics.IncPluginTimeout()
			}
			sc.info = info
			return automaton.OperationResultException, err
		}

		sc.info = info
		if info.Status == plugin.StatusUndefined {
			return automaton.OperationResultException, domain.ErrUnknownOutcome
		}
		return resultForPluginStatus(info.Status), nil
	}
}

func callForType(p plugin.PaymentPluginApi, t domain.TransactionType) func(context.Context, plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	switch t {
	case domain.TransactionTypeAuthorize:
		return p.Authorize
	case domain.TransactionTypeCapture:
		return p.Capture
	case domain.TransactionTypePurchase:
		return p.Purchase
	case domain.TransactionTypeRefund:
		return p.Refund
	case domain.TransactionTypeCredit:
		return p.Credit
	case domain.TransactionTypeVoid:
		return p.Void
	case domain.TransactionTypeChargeback:
		return p.Chargeback
	default:
		return nil
	}
}
