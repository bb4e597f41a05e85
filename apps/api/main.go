package main

import (
	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/booking"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/dedup"
	"github.com/smallbiznis/staybook/internal/directory"
	"github.com/smallbiznis/staybook/internal/migration"
	"github.com/smallbiznis/staybook/internal/observability"
	"github.com/smallbiznis/staybook/internal/ratelimit"
	"github.com/smallbiznis/staybook/internal/report"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/server"
	"github.com/smallbiznis/staybook/internal/settings"
	"github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		businessday.Module,
		migration.Module,

		// Ingest and report dependencies
		settings.Module,
		dedup.Module,
		rollup.Module,
		directory.Module,
		booking.Module,
		report.Module,
		ratelimit.Module,

		// No scheduler: run apps/scheduler next to a fleet of API replicas.
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
