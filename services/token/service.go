package token

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

// Service is the balance-ledger capability behind point balances: mint N
// units to a holder, burn N units from a holder. Each operation appends a
// hash-chained ledger entry and moves the balance row in the same
// transaction.
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

// MintTx credits amount to the holder inside the caller's transaction,
// creating the balance row on first use. Callers that have no transaction of
// their own use Mint.
func (s *Service) MintTx(tx *gorm.DB, holderID string, amount uint64) error {
	if holderID == "" {
		return errutil.InvalidInput("holder_id is required")
	}
	if amount == 0 {
		return errutil.InvalidInput("mint amount must be greater than zero")
	}

	balance, err := lockBalance(tx, holderID)
	if err != nil {
		return err
	}

	if err := s.appendEntry(tx, holderID, EntryMint, amount); err != nil {
		return err
	}

	if balance == nil {
		return tx.Create(&Balance{HolderID: holderID, Balance: amount}).Error
	}

	next, ok := checked.Add(balance.Balance, amount)
	if !ok {
		return errutil.Overflow("point balance overflow")
	}
	return tx.Model(&Balance{}).Where("holder_id = ?", holderID).
		Update("balance", next).Error
}

// Mint credits amount to the holder in its own transaction.
func (s *Service) Mint(ctx context.Context, holderID string, amount uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.MintTx(tx, holderID, amount)
	})
	if err != nil {
		return wrap(err, "mint failed")
	}

	zap.L().Debug("points minted",
		zap.String("holder_id", holderID), zap.Uint64("amount", amount))

	return nil
}

// BurnTx debits amount from the holder inside the caller's transaction. An
// insufficient balance fails the burn with nothing mutated.
func (s *Service) BurnTx(tx *gorm.DB, holderID string, amount uint64) error {
	if holderID == "" {
		return errutil.InvalidInput("holder_id is required")
	}
	if amount == 0 {
		return errutil.InvalidInput("burn amount must be greater than zero")
	}

	balance, err := lockBalance(tx, holderID)
	if err != nil {
		return err
	}
	if balance == nil || balance.Balance < amount {
		return errutil.InsufficientBalance("point balance below burn amount")
	}

	if err := s.appendEntry(tx, holderID, EntryBurn, amount); err != nil {
		return err
	}

	return tx.Model(&Balance{}).Where("holder_id = ?", holderID).
		Update("balance", balance.Balance-amount).Error
}

// Burn debits amount from the holder in its own transaction.
func (s *Service) Burn(ctx context.Context, holderID string, amount uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.BurnTx(tx, holderID, amount)
	})
	if err != nil {
		return wrap(err, "burn failed")
	}

	zap.L().Debug("points burned",
		zap.String("holder_id", holderID), zap.Uint64("amount", amount))

	return nil
}

// BalanceOf returns the holder's current balance, zero for unknown holders.
func (s *Service) BalanceOf(ctx context.Context, holderID string) (uint64, error) {
	var balance Balance
	if err := s.db.WithContext(ctx).Where("holder_id = ?", holderID).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errutil.Internal("failed to query balance", errutil.WithErr(err))
	}
	return balance.Balance, nil
}

// VerifyChain walks the holder's ledger entries in insertion order and
// checks every hash link.
func (s *Service) VerifyChain(ctx context.Context, holderID string) (bool, error) {
	var entries []LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("holder_id = ?", holderID).
		Order("created_at ASC, entry_id ASC").
		Find(&entries).Error; err != nil {
		return false, errutil.Internal("failed to query ledger entries", errutil.WithErr(err))
	}

	var lastHash string
	for i := range entries {
		e := &entries[i]
		if e.Hash != e.GenerateHash() || e.PreviousHash != lastHash {
			return false, nil
		}
		lastHash = e.Hash
	}

	return true, nil
}

func (s *Service) appendEntry(tx *gorm.DB, holderID string, typ EntryType, amount uint64) error {
	var last LedgerEntry
	previousHash := ""
	err := tx.Where("holder_id = ?", holderID).
		Order("created_at DESC, entry_id DESC").
		First(&last).Error
	if err == nil {
		previousHash = last.Hash
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	entry := &LedgerEntry{
		ID:           s.node.Generate().String(),
		HolderID:     holderID,
		Type:         typ,
		Amount:       amount,
		PreviousHash: previousHash,
	}
	entry.Hash = entry.GenerateHash()

	return tx.Create(entry).Error
}

func lockBalance(tx *gorm.DB, holderID string) (*Balance, error) {
	var balance Balance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("holder_id = ?", holderID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func wrap(err error, msg string) error {
	if errutil.StatusOf(err) != errutil.StatusUnknown {
		return err
	}
	return errutil.Internal(msg, errutil.WithErr(err))
}
