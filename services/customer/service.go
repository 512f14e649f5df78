package customer

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/program"
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

type RegisterRequest struct {
	WalletID  string `json:"wallet_id"`
	ProgramID string `json:"program_id"`
}

// Register enrolls a wallet in the program and bumps the program customer
// count in the same transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Customer, error) {
	if req.WalletID == "" || req.ProgramID == "" {
		return nil, errutil.InvalidInput("wallet_id and program_id are required")
	}

	c := &Customer{
		ID:           s.node.Generate().String(),
		WalletID:     req.WalletID,
		ProgramID:    req.ProgramID,
		Tier:         TierBronze,
		LastActivity: time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p program.Program
		if err := tx.Where("program_id = ?", req.ProgramID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errutil.NotFound("program not found")
			}
			return err
		}

		var existing Customer
		if err := tx.Where("wallet_id = ? AND program_id = ?", req.WalletID, req.ProgramID).
			First(&existing).Error; err == nil {
			return errutil.Conflict("customer already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(c).Error; err != nil {
			return err
		}

		return tx.Model(&program.Program{}).
			Where("program_id = ?", req.ProgramID).
			Update("total_customers", gorm.Expr("total_customers + 1")).Error
	})
	if err != nil {
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return nil, err
		}
		return nil, errutil.Internal("failed to register customer", errutil.WithErr(err))
	}

	zap.L().Info("customer registered",
		zap.String("customer_id", c.ID),
		zap.String("wallet_id", c.WalletID),
	)

	return c, nil
}

// Get returns a customer by id.
func (s *Service) Get(ctx context.Context, customerID string) (*Customer, error) {
	var c Customer
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("customer not found")
		}
		return nil, errutil.Internal("failed to query customer", errutil.WithErr(err))
	}
	return &c, nil
}
