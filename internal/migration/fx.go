package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}
		if !cfg.SeedSampleRules {
			return nil
		}
		inserted, err := seed.EnsureSampleRules(conn, node)
		if err != nil {
			return err
		}
		log.Named("migration").Info("sample rules seeded", zap.Int("inserted", inserted))
		return nil
	}),
)
