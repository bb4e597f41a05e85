package main

import (
	_ "time/tzdata"

	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/dedup"
	"github.com/smallbiznis/staybook/internal/observability"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/scheduler"
	"github.com/smallbiznis/staybook/internal/settings"
	"github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		businessday.Module,

		// Domain services required by scheduler
		settings.Module,
		dedup.Module,
		rollup.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}
