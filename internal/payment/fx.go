package payment

import (
	"github.com/smallbiznis/paycore/internal/payment/repository"
	"github.com/smallbiznis/paycore/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
