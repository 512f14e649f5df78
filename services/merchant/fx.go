package merchant

import (
	"go.uber.org/fx"

	"solcity-loyalty/services/treasury"
)

var Module = fx.Module("merchant.service",
	fx.Provide(
		NewService,
		func(s *treasury.Service) FeeTransfer { return s },
	),
)
