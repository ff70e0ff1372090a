package domain

// State names follow the <TYPE>_<OUTCOME> convention; the payment row
// carries the state reached by its most recent attempt.

func InitStateName(t TransactionType) string    { return string(t) + "_INIT" }
func SuccessStateName(t TransactionType) string { return string(t) + "_SUCCESS" }
func FailedStateName(t TransactionType) string  { return string(t) + "_FAILED" }
func PendingStateName(t TransactionType) string { return string(t) + "_PENDING" }
func ErroredStateName(t TransactionType) string { return string(t) + "_ERRORED" }

// StateNameForStatus maps a resolved transaction status to the state
// the payment should carry. Used when reconciliation resolves an
// attempt outside an operation run.
func StateNameForStatus(t TransactionType, status TransactionStatus) string {
	switch status {
	case TransactionStatusSuccess:
		return SuccessStateName(t)
	case TransactionStatusPaymentFailure, TransactionStatusPluginFailure:
		return FailedStateName(t)
	case TransactionStatusPending:
		return PendingStateName(t)
	default:
		return ErroredStateName(t)
	}
}
