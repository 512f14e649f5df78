package treasury

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solcity-loyalty/pkg/checked"
	"solcity-loyalty/pkg/errutil"
)

// Service is the payment capability: transfer N currency units from a payer
// to a payee. The loyalty engine consumes it for platform fees only.
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

// Deposit credits an account, creating it on first use.
func (s *Service) Deposit(ctx context.Context, holderID string, amount uint64) error {
	if holderID == "" {
		return errutil.InvalidInput("holder_id is required")
	}
	if amount == 0 {
		return errutil.InvalidInput("deposit amount must be greater than zero")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockAccount(tx, holderID)
		if err != nil {
			return err
		}
		if acct == nil {
			return tx.Create(&Account{HolderID: holderID, Balance: amount}).Error
		}

		next, ok := checked.Add(acct.Balance, amount)
		if !ok {
			return errutil.Overflow("account balance overflow")
		}
		return tx.Model(&Account{}).Where("holder_id = ?", holderID).
			Update("balance", next).Error
	})
}

// TransferTx moves amount from payer to payee inside the caller's
// transaction. The debit and credit commit as one unit; an insufficient
// payer balance fails the transfer with nothing mutated.
func (s *Service) TransferTx(tx *gorm.DB, payerID, payeeID string, amount uint64) error {
	if payerID == "" || payeeID == "" {
		return errutil.InvalidInput("payer and payee are required")
	}
	if payerID == payeeID {
		return errutil.InvalidInput("payer and payee must differ")
	}
	if amount == 0 {
		return nil
	}

	// Fixed lock order by holder id to avoid deadlock between opposing
	// transfers.
	first, second := payerID, payeeID
	if second < first {
		first, second = second, first
	}
	if _, err := lockAccount(tx, first); err != nil {
		return err
	}
	if _, err := lockAccount(tx, second); err != nil {
		return err
	}

	var payer Account
	if err := tx.Where("holder_id = ?", payerID).First(&payer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errutil.InsufficientBalance("payer account has no funds")
		}
		return err
	}
	if payer.Balance < amount {
		return errutil.InsufficientBalance("payer balance below transfer amount")
	}

	if err := tx.Model(&Account{}).Where("holder_id = ?", payerID).
		Update("balance", gorm.Expr("balance - ?", amount)).Error; err != nil {
		return err
	}

	var payee Account
	if err := tx.Where("holder_id = ?", payeeID).First(&payee).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Create(&Account{HolderID: payeeID, Balance: amount}).Error; err != nil {
			return err
		}
	} else {
		next, ok := checked.Add(payee.Balance, amount)
		if !ok {
			return errutil.Overflow("payee balance overflow")
		}
		if err := tx.Model(&Account{}).Where("holder_id = ?", payeeID).
			Update("balance", next).Error; err != nil {
			return err
		}
	}

	return tx.Create(&Transfer{
		ID:      s.node.Generate().String(),
		PayerID: payerID,
		PayeeID: payeeID,
		Amount:  amount,
	}).Error
}

// Transfer moves amount from payer to payee in its own transaction.
func (s *Service) Transfer(ctx context.Context, payerID, payeeID string, amount uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.TransferTx(tx, payerID, payeeID, amount)
	})
	if err != nil {
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return err
		}
		return errutil.Internal("transfer failed", errutil.WithErr(err))
	}

	zap.L().Debug("fee transfer committed",
		zap.String("payer_id", payerID),
		zap.String("payee_id", payeeID),
		zap.Uint64("amount", amount),
	)

	return nil
}

// BalanceOf returns the current account balance, zero for unknown holders.
func (s *Service) BalanceOf(ctx context.Context, holderID string) (uint64, error) {
	var acct Account
	if err := s.db.WithContext(ctx).Where("holder_id = ?", holderID).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errutil.Internal("failed to query account", errutil.WithErr(err))
	}
	return acct.Balance, nil
}

func lockAccount(tx *gorm.DB, holderID string) (*Account, error) {
	var acct Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("holder_id = ?", holderID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}
