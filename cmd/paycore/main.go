package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/dispatcher"
	"github.com/smallbiznis/paycore/internal/events"
	"github.com/smallbiznis/paycore/internal/janitor"
	"github.com/smallbiznis/paycore/internal/locker"
	"github.com/smallbiznis/paycore/internal/logger"
	"github.com/smallbiznis/paycore/internal/migration"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment"
	"github.com/smallbiznis/paycore/internal/plugin"
	"github.com/smallbiznis/paycore/internal/plugin/noop"
	"github.com/smallbiznis/paycore/internal/server"
	"github.com/smallbiznis/paycore/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Payment core
		locker.Module,
		dispatcher.Module,
		events.Module,
		fx.Provide(RegisterPlugins),
		payment.Module,
		janitor.Module,

		// Transport
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func RegisterPlugins() *plugin.Registry {
	return plugin.NewRegistry(noop.New())
}
