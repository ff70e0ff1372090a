package service

import (
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
)

// stateContext carries one operation run across the leaving, work and
// entering callbacks. It lives entirely under the account lock.
type stateContext struct {
	typ        domain.TransactionType
	req        domain.OperationRequest
	completion bool

	payment    *domain.Payment
	newPayment bool
	txn        *domain.PaymentTransaction

	attemptAmount int64
	currency      string

	// localInfo, when set, is a locally synthesized outcome; the plugin
	// is not called.
	localInfo *plugin.TransactionInfo

	info      *plugin.TransactionInfo
	pluginErr *plugin.Error

	// persisted is true once the attempt row exists, which is the point
	// after which any failure must be recorded rather than reported.
	persisted   bool
	finalStatus domain.TransactionStatus
}
