package metrics

import (
	"github.com/smallbiznis/paycore/internal/config"
	"go.uber.org/fx"
)

// NewFromConfig builds the payment metrics registry from app config.
func NewFromConfig(cfg config.Config) *PaymentMetrics {
	return PaymentWithConfig(Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}

var Module = fx.Module("metrics",
	fx.Provide(NewFromConfig),
)
