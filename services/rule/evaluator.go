package rule

import (
	"time"

	"go.uber.org/zap"

	"solcity-loyalty/pkg/celengine"
)

// Outcome is the result of evaluating a rule against a purchase.
type Outcome struct {
	Applied    bool
	RuleID     string
	Multiplier uint64
}

// Neutral is the outcome when no rule applies: the tier-adjusted amount
// passes through unchanged.
func Neutral() Outcome {
	return Outcome{Multiplier: NeutralMultiplier}
}

// PurchaseContext carries the attributes a rule may inspect.
type PurchaseContext struct {
	Amount           uint64
	CustomerTier     string
	TransactionCount uint64
	StreakDays       uint64
}

func (p PurchaseContext) attrs() map[string]interface{} {
	return map[string]interface{}{
		"amount":            p.Amount,
		"tier":              p.CustomerTier,
		"transaction_count": p.TransactionCount,
		"streak_days":       p.StreakDays,
	}
}

// Evaluate decides whether r applies to the purchase. A nil rule, an
// inactive rule, a window miss, an unmet purchase minimum or a failing
// CEL expression all yield the neutral outcome; evaluation never fails
// the purchase itself.
func Evaluate(r *RewardRule, p PurchaseContext, now time.Time) Outcome {
	if r == nil || !r.IsActive {
		return Neutral()
	}
	if !r.InWindow(now) {
		return Neutral()
	}
	if p.Amount < r.MinPurchase {
		return Neutral()
	}

	if r.Expression != "" {
		attrs := p.attrs()
		env, err := celengine.EnvFor(attrs)
		if err != nil {
			zap.L().Warn("rule expression env failed, skipping rule",
				zap.String("rule_id", r.ID), zap.Error(err))
			return Neutral()
		}
		ok, err := celengine.Evaluate(env, r.Expression, attrs)
		if err != nil {
			zap.L().Warn("rule expression evaluation failed, skipping rule",
				zap.String("rule_id", r.ID), zap.Error(err))
			return Neutral()
		}
		if !ok {
			return Neutral()
		}
	}

	return Outcome{Applied: true, RuleID: r.ID, Multiplier: r.Multiplier}
}
