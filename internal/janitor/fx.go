package janitor

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("janitor",
	fx.Provide(New),
	fx.Invoke(RunJanitor),
)

func RunJanitor(lc fx.Lifecycle, j *Janitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go j.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
