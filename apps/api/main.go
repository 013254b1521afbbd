package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/amount"
	"github.com/smallbiznis/airtax/internal/behavior"
	"github.com/smallbiznis/airtax/internal/cache"
	"github.com/smallbiznis/airtax/internal/clock"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/currency"
	"github.com/smallbiznis/airtax/internal/dispatch"
	"github.com/smallbiznis/airtax/internal/evaluation"
	"github.com/smallbiznis/airtax/internal/observability"
	"github.com/smallbiznis/airtax/internal/ratelimit"
	"github.com/smallbiznis/airtax/internal/scheduler"
	"github.com/smallbiznis/airtax/internal/sequencer"
	"github.com/smallbiznis/airtax/internal/server"
	"github.com/smallbiznis/airtax/internal/taxrule"
	"github.com/smallbiznis/airtax/pkg/db"
	"github.com/smallbiznis/airtax/pkg/telemetry"
	"go.uber.org/fx"
)

// The API process keeps its own rule snapshot fresh; rate warming belongs to
// the scheduler process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		cache.Module,
		clock.Module,

		currency.Module,
		taxrule.Module,
		behavior.Module,
		amount.Module,
		sequencer.Module,
		evaluation.Module,
		dispatch.Module,
		ratelimit.Module,

		scheduler.Module,
		fx.Decorate(func(cfg scheduler.Config) scheduler.Config {
			cfg.EnabledJobs = []string{scheduler.JobRuleSnapshotRefresh}
			return cfg
		}),

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
