package dispatcher

import (
	"context"

	"github.com/smallbiznis/paycore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newPool(cfg config.Config) *Pool {
	return NewPool(cfg.PluginWorkers)
}

func newDispatcher(cfg config.Config, pool *Pool, log *zap.Logger) *Dispatcher {
	return New(pool, cfg.PluginTimeout, log)
}

func registerHooks(lc fx.Lifecycle, pool *Pool) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pool.Stop(ctx)
		},
	})
}

// Module wires the plugin worker pool and dispatcher.
var Module = fx.Module("dispatcher",
	fx.Provide(
		newPool,
		newDispatcher,
	),
	fx.Invoke(registerHooks),
)
