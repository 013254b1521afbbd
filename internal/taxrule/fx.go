package taxrule

import (
	"context"

	"github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/taxrule/repository"
	"github.com/smallbiznis/airtax/internal/taxrule/service"
	"github.com/smallbiznis/airtax/internal/taxrule/snapshot"
	"go.uber.org/fx"
)

var Module = fx.Module("taxrule",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(repo domain.Repository) domain.Reader { return repo }),
	fx.Provide(service.NewService),
	fx.Provide(snapshot.NewStore),
	fx.Invoke(func(lc fx.Lifecycle, store *snapshot.Store) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				_, err := store.Refresh(ctx)
				return err
			},
		})
	}),
)
