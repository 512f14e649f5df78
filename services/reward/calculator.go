package reward

import (
	"solcity-loyalty/pkg/checked"
	"solcity-loyalty/pkg/errutil"
)

// Breakdown is the full arithmetic trail of one issuance. Every stage is
// kept so the emitted event can show how the final amount was reached.
type Breakdown struct {
	PurchaseAmount uint64
	RewardRate     uint64
	BaseReward     uint64
	TierMultiplier uint64
	TierAdjusted   uint64
	RuleMultiplier uint64
	FinalReward    uint64
	PlatformFee    uint64
}

// Compute derives the reward for a purchase. All multipliers are percentages
// scaled by 100 (100 = 1x). Division truncates at every stage; remainders
// are discarded, never carried. A computation that truncates to zero points
// is rejected rather than silently issuing nothing.
func Compute(purchase, rate, tierMult, ruleMult, feePerPoint uint64) (*Breakdown, error) {
	if purchase == 0 {
		return nil, errutil.InvalidInput("purchase amount must be greater than zero")
	}

	scaled, ok := checked.Mul(purchase, rate)
	if !ok {
		return nil, errutil.Overflow("reward computation overflow")
	}
	base := scaled / 100 / 100

	tierScaled, ok := checked.Mul(base, tierMult)
	if !ok {
		return nil, errutil.Overflow("reward computation overflow")
	}
	tierAdjusted := tierScaled / 100

	ruleScaled, ok := checked.Mul(tierAdjusted, ruleMult)
	if !ok {
		return nil, errutil.Overflow("reward computation overflow")
	}
	final := ruleScaled / 100

	if final == 0 {
		return nil, errutil.InvalidInput("purchase amount too small to earn any points")
	}

	fee, ok := checked.Mul(final, feePerPoint)
	if !ok {
		return nil, errutil.Overflow("platform fee computation overflow")
	}

	return &Breakdown{
		PurchaseAmount: purchase,
		RewardRate:     rate,
		BaseReward:     base,
		TierMultiplier: tierMult,
		TierAdjusted:   tierAdjusted,
		RuleMultiplier: ruleMult,
		FinalReward:    final,
		PlatformFee:    fee,
	}, nil
}
