package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptosim/internal/uuid"
)

// TradeSide represents the direction of a trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// OrderType is how the order was submitted. The simulator fills everything
// at the submitted price, so the distinction is informational.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Transaction is the write-once record of a completed trade.
// Immutable time-series data: no Base embed, no soft deletes. Rows are
// created exactly once per successful trade and never updated; the only
// delete path is an explicit user data reset.
type Transaction struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string          `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID     string          `gorm:"type:uuid;not null;index" json:"account_id"`
	Side          TradeSide       `gorm:"size:4;not null" json:"type"`
	OrderType     OrderType       `gorm:"size:10;not null;default:'market'" json:"order_type"`
	Symbol        string          `gorm:"size:20;not null;index" json:"symbol"`
	Quantity      decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
	Price         decimal.Decimal `gorm:"type:numeric;not null" json:"price"`
	TotalValue    decimal.Decimal `gorm:"type:numeric;not null" json:"total_value"`
	Fee           decimal.Decimal `gorm:"type:numeric;not null" json:"fee"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric;not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric;not null" json:"balance_after"`
	ExecutedAt    time.Time       `gorm:"not null;index" json:"timestamp"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New()
	}
	return nil
}
