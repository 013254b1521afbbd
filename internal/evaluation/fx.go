package evaluation

import (
	"github.com/smallbiznis/airtax/internal/evaluation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("evaluation",
	fx.Provide(service.NewService),
)
