package locker

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// Provide selects the locker backend from configuration.
func Provide(p Params) GlobalLocker {
	if p.Cfg.LockBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     p.Cfg.RedisAddr,
			Password: p.Cfg.RedisPassword,
			DB:       p.Cfg.RedisDB,
		})
		return NewRedisLocker(client, p.Cfg.AccountLockTTL, p.Log)
	}
	return NewMemoryLocker()
}

// Module wires the account locker.
var Module = fx.Module("locker",
	fx.Provide(Provide),
)
