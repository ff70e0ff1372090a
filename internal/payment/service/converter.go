package service

import (
	"github.com/smallbiznis/paycore/internal/automaton"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
)

// resultForPluginStatus maps the plugin's answer to the state machine
// outcome driving the transition.
func resultForPluginStatus(status plugin.Status) automaton.OperationResult {
	switch status {
	case plugin.StatusProcessed:
		return automaton.OperationResultSuccess
	case plugin.StatusPending:
		return automaton.OperationResultPending
	case plugin.StatusError, plugin.StatusCanceled:
		return automaton.OperationResultFailure
	default:
		return automaton.OperationResultException
	}
}

// statusForPluginInfo maps the plugin's answer to the durable
// transaction status. A nil info means the plugin never answered.
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

// processedAmountFor returns the amount the processor is known to have
// handled. Only resolved answers carry one; an UNKNOWN or failed-in-
// plugin attempt must not contribute to balances.
func processedAmountFor(status domain.TransactionStatus, info *plugin.TransactionInfo) (int64, string) {
	if info == nil {
		return 0, ""
	}
	switch status {
	case domain.TransactionStatusPending,
		domain.TransactionStatusSuccess,
		domain.TransactionStatusPaymentFailure:
		return info.Amount, info.Currency
	default:
		return 0, ""
	}
}
