package amount

import "go.uber.org/fx"

var Module = fx.Module("amount",
	fx.Provide(NewEngine),
)
