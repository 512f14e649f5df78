package treasury

import "time"

// Account is a currency balance addressed by holder id. The platform
// treasury is an ordinary account named by the program record.
type Account struct {
	HolderID  string    `gorm:"column:holder_id;primaryKey"`
	Balance   uint64    `gorm:"column:balance;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "treasury_accounts" }

// Transfer is the append-only record of one fee payment.
type Transfer struct {
	ID        string    `gorm:"column:transfer_id;primaryKey"`
	PayerID   string    `gorm:"column:payer_id;index;not null"`
	PayeeID   string    `gorm:"column:payee_id;index;not null"`
	Amount    uint64    `gorm:"column:amount;not null"`
	Reference string    `gorm:"column:reference"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Transfer) TableName() string { return "treasury_transfers" }
