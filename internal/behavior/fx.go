package behavior

import "go.uber.org/fx"

var Module = fx.Module("behavior",
	fx.Provide(NewRegistry),
)
