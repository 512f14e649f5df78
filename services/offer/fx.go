package offer

import (
	"go.uber.org/fx"
)

var Module = fx.Module("offer.service",
	fx.Provide(NewService),
)
