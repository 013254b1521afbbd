package sequencer

import "go.uber.org/fx"

var Module = fx.Module("sequencer",
	fx.Provide(New),
)
