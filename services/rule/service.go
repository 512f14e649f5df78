package rule

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/celengine"
	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/merchant"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, node: p.Node}
}

type SetRequest struct {
	AuthorityID string `json:"authority_id"`
	MerchantID  string `json:"merchant_id"`
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Multiplier  uint64 `json:"multiplier"`
	MinPurchase uint64 `json:"min_purchase"`
	StartTime   int64  `json:"start_time"`
	EndTime     int64  `json:"end_time"`
	Expression  string `json:"expression"`
}

func (r SetRequest) validate() error {
	if r.Name == "" {
		return errutil.InvalidInput("rule name cannot be empty")
	}
	if len(r.Name) > MaxNameLen {
		return errutil.InvalidInput("rule name exceeds maximum length")
	}
	if !r.Kind.Valid() {
		return errutil.InvalidInput("unknown rule kind")
	}
	if r.Multiplier < NeutralMultiplier {
		return errutil.InvalidInput("rule multiplier must be at least 100")
	}
	if r.StartTime != 0 && r.EndTime != 0 && r.EndTime <= r.StartTime {
		return errutil.InvalidTimeRange("rule end time must be after start time")
	}
	if r.Expression != "" {
		attrs := PurchaseContext{}.attrs()
		env, err := celengine.EnvFor(attrs)
		if err != nil {
			return errutil.Internal("failed to build expression environment", errutil.WithErr(err))
		}
		if err := celengine.ValidateExpression(env, r.Expression); err != nil {
			return errutil.InvalidInput("rule expression does not compile", errutil.WithErr(err))
		}
	}
	return nil
}

// Set creates a reward rule owned by the merchant's authority.
func (s *Service) Set(ctx context.Context, req SetRequest) (*RewardRule, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var m merchant.Merchant
	if err := s.db.WithContext(ctx).Where("merchant_id = ?", req.MerchantID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("merchant not found")
		}
		return nil, errutil.Internal("failed to query merchant", errutil.WithErr(err))
	}
	if m.AuthorityID != req.AuthorityID {
		return nil, errutil.Unauthorized("caller does not own this merchant")
	}

	rule := &RewardRule{
		ID:          s.node.Generate().String(),
		MerchantID:  req.MerchantID,
		Name:        req.Name,
		Kind:        req.Kind,
		Multiplier:  req.Multiplier,
		MinPurchase: req.MinPurchase,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Expression:  req.Expression,
		IsActive:    true,
	}

	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, errutil.Internal("failed to create rule", errutil.WithErr(err))
	}

	zap.L().Info("reward rule created",
		zap.String("rule_id", rule.ID),
		zap.String("merchant_id", rule.MerchantID),
		zap.String("kind", string(rule.Kind)),
		zap.Uint64("multiplier", rule.Multiplier),
	)

	return rule, nil
}

type UpdateRequest struct {
	AuthorityID string  `json:"authority_id"`
	Name        *string `json:"name,omitempty"`
	Multiplier  *uint64 `json:"multiplier,omitempty"`
	MinPurchase *uint64 `json:"min_purchase,omitempty"`
	StartTime   *int64  `json:"start_time,omitempty"`
	EndTime     *int64  `json:"end_time,omitempty"`
	Expression  *string `json:"expression,omitempty"`
}

// Update edits an existing rule in place.
func (s *Service) Update(ctx context.Context, ruleID string, req UpdateRequest) (*RewardRule, error) {
	rule, err := s.authorized(ctx, ruleID, req.AuthorityID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Multiplier != nil {
		rule.Multiplier = *req.Multiplier
	}
	if req.MinPurchase != nil {
		rule.MinPurchase = *req.MinPurchase
	}
	if req.StartTime != nil {
		rule.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		rule.EndTime = *req.EndTime
	}
	if req.Expression != nil {
		rule.Expression = *req.Expression
	}

	check := SetRequest{
		Name:       rule.Name,
		Kind:       rule.Kind,
		Multiplier: rule.Multiplier,
		StartTime:  rule.StartTime,
		EndTime:    rule.EndTime,
		Expression: rule.Expression,
	}
	if err := check.validate(); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return nil, errutil.Internal("failed to update rule", errutil.WithErr(err))
	}

	return rule, nil
}

// Toggle flips the rule active flag.
func (s *Service) Toggle(ctx context.Context, ruleID, authorityID string) (*RewardRule, error) {
	rule, err := s.authorized(ctx, ruleID, authorityID)
	if err != nil {
		return nil, err
	}

	rule.IsActive = !rule.IsActive
	if err := s.db.WithContext(ctx).Model(&RewardRule{}).
		Where("rule_id = ?", ruleID).
		Update("is_active", rule.IsActive).Error; err != nil {
		return nil, errutil.Internal("failed to toggle rule", errutil.WithErr(err))
	}

	return rule, nil
}

// Delete removes the rule permanently.
func (s *Service) Delete(ctx context.Context, ruleID, authorityID string) error {
	if _, err := s.authorized(ctx, ruleID, authorityID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Delete(&RewardRule{}).Error; err != nil {
		return errutil.Internal("failed to delete rule", errutil.WithErr(err))
	}

	zap.L().Info("reward rule deleted", zap.String("rule_id", ruleID))

	return nil
}

// Get returns a rule by id.
func (s *Service) Get(ctx context.Context, ruleID string) (*RewardRule, error) {
	var rule RewardRule
	if err := s.db.WithContext(ctx).Where("rule_id = ?", ruleID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("rule not found")
		}
		return nil, errutil.Internal("failed to query rule", errutil.WithErr(err))
	}
	return &rule, nil
}

// ListForMerchant returns every rule owned by the merchant.
func (s *Service) ListForMerchant(ctx context.Context, merchantID string) ([]RewardRule, error) {
	var rules []RewardRule
	if err := s.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at").
		Find(&rules).Error; err != nil {
		return nil, errutil.Internal("failed to list rules", errutil.WithErr(err))
	}
	return rules, nil
}

// CountActive reports the number of active rules owned by the merchant.
// Implements merchant.ActiveRuleCounter.
func (s *Service) CountActive(ctx context.Context, merchantID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&RewardRule{}).
		Where("merchant_id = ? AND is_active = ?", merchantID, true).
		Count(&n).Error; err != nil {
		return 0, errutil.Internal("failed to count active rules", errutil.WithErr(err))
	}
	return n, nil
}

// BestFor evaluates the merchant's active rules against the purchase and
// returns the applying outcome with the highest multiplier, or the neutral
// outcome when none apply.
func (s *Service) BestFor(ctx context.Context, merchantID string, p PurchaseContext, now time.Time) (Outcome, error) {
	var rules []RewardRule
	if err := s.db.WithContext(ctx).
		Where("merchant_id = ? AND is_active = ?", merchantID, true).
		Find(&rules).Error; err != nil {
		return Neutral(), errutil.Internal("failed to load rules", errutil.WithErr(err))
	}

	best := Neutral()
	for i := range rules {
		out := Evaluate(&rules[i], p, now)
		if out.Applied && out.Multiplier > best.Multiplier {
			best = out
		}
	}
	return best, nil
}

// EvaluateByID evaluates one named rule against the purchase. A rule that
// cannot be loaded, or that belongs to another merchant, degrades to the
// neutral outcome the same way a failing evaluation does; naming a bad rule
// never fails the purchase.
func (s *Service) EvaluateByID(ctx context.Context, merchantID, ruleID string, p PurchaseContext, now time.Time) Outcome {
	var r RewardRule
	if err := s.db.WithContext(ctx).
		Where("rule_id = ? AND merchant_id = ?", ruleID, merchantID).
		First(&r).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Warn("failed to load named rule",
				zap.String("rule_id", ruleID), zap.Error(err))
		}
		return Neutral()
	}
	return Evaluate(&r, p, now)
}

func (s *Service) authorized(ctx context.Context, ruleID, authorityID string) (*RewardRule, error) {
	rule, err := s.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	var m merchant.Merchant
	if err := s.db.WithContext(ctx).Where("merchant_id = ?", rule.MerchantID).First(&m).Error; err != nil {
		return nil, errutil.Internal("failed to query merchant", errutil.WithErr(err))
	}
	if m.AuthorityID != authorityID {
		return nil, errutil.Unauthorized("caller does not own this merchant")
	}

	return rule, nil
}
