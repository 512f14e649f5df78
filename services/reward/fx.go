package reward

import (
	"go.uber.org/fx"

	"solcity-loyalty/services/rule"
	"solcity-loyalty/services/token"
	"solcity-loyalty/services/treasury"
)

var Module = fx.Module("reward.service",
	fx.Provide(
		NewService,
		func(s *token.Service) Minter { return s },
		func(s *treasury.Service) FeePayer { return s },
		func(s *rule.Service) RuleSelector { return s },
	),
)
