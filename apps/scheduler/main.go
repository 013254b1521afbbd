package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/cache"
	"github.com/smallbiznis/airtax/internal/clock"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	"github.com/smallbiznis/airtax/internal/migration"
	"github.com/smallbiznis/airtax/internal/observability"
	"github.com/smallbiznis/airtax/internal/ratelimit"
	"github.com/smallbiznis/airtax/internal/scheduler"
	"github.com/smallbiznis/airtax/internal/taxrule"
	"github.com/smallbiznis/airtax/pkg/db"
	"github.com/smallbiznis/airtax/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		cache.Module,
		clock.Module,

		// Domain services required by scheduler
		currency.Module,
		taxrule.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
