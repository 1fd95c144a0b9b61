package models

import "github.com/shopspring/decimal"

// ReserveSymbol is the spendable-balance currency. Every account carries a
// synthetic holding of this symbol whose price is pinned to 1.
const ReserveSymbol = "USDT"

// Account is one trading context: the individual context when CollectionID
// is NULL, or a per-collection context otherwise. A user has at most one row
// per context and the row is immutable once created (only holdings change).
type Account struct {
	Base
	UserID          string          `gorm:"type:uuid;not null;uniqueIndex:idx_accounts_context" json:"user_id"`
	CollectionID    *string         `gorm:"type:uuid;uniqueIndex:idx_accounts_context" json:"collection_id,omitempty"`
	StartingBalance decimal.Decimal `gorm:"type:numeric;not null" json:"starting_balance"`
	IsActive        bool            `gorm:"default:true" json:"is_active"`

	Holdings []Holding `gorm:"foreignKey:AccountID" json:"holdings,omitempty"`
}

// IsIndividual reports whether this account is the user's individual context.
func (a *Account) IsIndividual() bool { return a.CollectionID == nil }

// TradingContext selects which of a user's ledgers an operation targets:
// the individual context, or one collection-scoped context. Contexts differ
// only by identity; holdings and snapshots share one schema.
type TradingContext struct {
	UserID       string
	CollectionID *string
}

// IndividualContext returns the user's individual trading context.
func IndividualContext(userID string) TradingContext {
	return TradingContext{UserID: userID}
}

// CollectionContext returns the user's context within one collection.
func CollectionContext(userID, collectionID string) TradingContext {
	return TradingContext{UserID: userID, CollectionID: &collectionID}
}

// AccountSnapshot is the derived aggregate view of one account. All totals
// are recomputed from holdings on every read rather than stored, so they
// cannot drift from the holdings that back them.
type AccountSnapshot struct {
	AccountID            string          `json:"account_id"`
	UserID               string          `json:"user_id"`
	CollectionID         *string         `json:"collection_id,omitempty"`
	USDTBalance          decimal.Decimal `json:"usdt_balance"`
	TotalPortfolioValue  decimal.Decimal `json:"total_portfolio_value"`
	StartingBalance      decimal.Decimal `json:"starting_balance"`
	TotalPnL             decimal.Decimal `json:"total_pnl"`
	TotalPnLPercentage   decimal.Decimal `json:"total_pnl_percentage"`
	Holdings             []Holding       `json:"holdings"`
}
