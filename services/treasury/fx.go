package treasury

import "go.uber.org/fx"

var Module = fx.Module("treasury.service",
	fx.Provide(NewService),
)
