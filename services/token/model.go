package token

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type EntryType string

const (
	EntryMint EntryType = "mint"
	EntryBurn EntryType = "burn"
)

// Balance is the current point balance per holder.
type Balance struct {
	HolderID  string    `gorm:"column:holder_id;primaryKey"`
	Balance   uint64    `gorm:"column:balance;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Balance) TableName() string { return "point_balances" }

// LedgerEntry is the append-only mint/burn journal. Entries per holder form
// a hash chain so the history can be verified independently of the balance
// row.
type LedgerEntry struct {
	ID           string    `gorm:"column:entry_id;primaryKey"`
	HolderID     string    `gorm:"column:holder_id;index;not null"`
	Type         EntryType `gorm:"column:type;not null"`
	Amount       uint64    `gorm:"column:amount;not null"`
	Reference    string    `gorm:"column:reference"`
	PreviousHash string    `gorm:"column:previous_hash"`
	Hash         string    `gorm:"column:hash"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "point_ledger_entries" }

// GenerateHash derives the chain hash for this entry.
func (e *LedgerEntry) GenerateHash() string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		e.ID, e.HolderID, e.Type, e.Amount, e.Reference, e.PreviousHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
