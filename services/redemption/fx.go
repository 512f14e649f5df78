package redemption

import (
	"go.uber.org/fx"

	"solcity-loyalty/services/token"
)

var Module = fx.Module("redemption.service",
	fx.Provide(
		NewService,
		func(s *token.Service) Burner { return s },
	),
)
