package rule

import (
	"go.uber.org/fx"

	"solcity-loyalty/services/merchant"
)

var Module = fx.Module("rule.service",
	fx.Provide(
		NewService,
		func(s *Service) merchant.ActiveRuleCounter { return s },
	),
)
