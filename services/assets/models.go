package assets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Balance is the holding of one account in one symbol. Amounts are stored as
// base-10 strings in minor units so precision never depends on the driver.
type Balance struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Account   string    `gorm:"size:64;uniqueIndex:idx_balance_account_symbol"`
	Symbol    string    `gorm:"size:16;uniqueIndex:idx_balance_account_symbol"`
	Amount    string    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SymbolState records whether transfers of a symbol are frozen.
type SymbolState struct {
	Symbol    string `gorm:"size:16;primaryKey"`
	Decimals  uint8
	Locked    bool
	UpdatedAt time.Time
}

// AppliedEffect is the idempotency record of one delivered effect.
type AppliedEffect struct {
	EffectKey string `gorm:"column:effect_key;size:64;primaryKey"`
	Kind      string `gorm:"size:16;index"`
	Sender    string `gorm:"size:64"`
	Recipient string `gorm:"size:64;index"`
	Symbol    string `gorm:"size:16"`
	Amount    string
	Memo      string `gorm:"size:256"`
	CreatedAt time.Time
}

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Balance{}, &SymbolState{}, &AppliedEffect{})
}
