package program

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/errutil"
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
	return &Service{
		db:   p.DB,
		node: p.Node,
	}
}

type InitializeRequest struct {
	AuthorityID  string `json:"authority_id"`
	MintID       string `json:"mint_id"`
	TreasuryID   string `json:"treasury_id"`
	Name         string `json:"name"`
	InterestRate *int16 `json:"interest_rate,omitempty"`
}

// Initialize creates the tenant root. One program per authority.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (*Program, error) {
	if req.AuthorityID == "" || req.MintID == "" || req.TreasuryID == "" {
		return nil, errutil.InvalidInput("authority_id, mint_id and treasury_id are required")
	}
	if req.Name == "" {
		return nil, errutil.InvalidInput("program name cannot be empty")
	}
	if len(req.Name) > MaxNameLen {
		return nil, errutil.InvalidInput("program name exceeds maximum length")
	}

	rate := DefaultInterestRate
	if req.InterestRate != nil {
		rate = *req.InterestRate
	}
	if rate < 0 || rate > 10_000 {
		return nil, errutil.InvalidInput("interest rate out of range")
	}

	var existing Program
	err := s.db.WithContext(ctx).Where("authority_id = ?", req.AuthorityID).First(&existing).Error
	if err == nil {
		return nil, errutil.Conflict("program already initialized for this authority")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.Internal("failed to query program", errutil.WithErr(err))
	}

	p := &Program{
		ID:           s.node.Generate().String(),
		AuthorityID:  req.AuthorityID,
		MintID:       req.MintID,
		TreasuryID:   req.TreasuryID,
		Name:         req.Name,
		InterestRate: rate,
	}

	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, errutil.Internal("failed to create program", errutil.WithErr(err))
	}

	zap.L().Info("loyalty program initialized",
		zap.String("program_id", p.ID),
		zap.String("authority_id", p.AuthorityID),
	)

	return p, nil
}

// Get returns a program by id.
func (s *Service) Get(ctx context.Context, programID string) (*Program, error) {
	var p Program
	if err := s.db.WithContext(ctx).Where("program_id = ?", programID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("program not found")
		}
		return nil, errutil.Internal("failed to query program", errutil.WithErr(err))
	}
	return &p, nil
}
