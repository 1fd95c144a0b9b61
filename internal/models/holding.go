package models

import "github.com/shopspring/decimal"

// Holding is the position of one account in one symbol. A non-reserve row
// only exists while amount > 0; a sell that empties the position deletes the
// row instead of keeping it at zero. ValueUSD and the P&L columns are
// derived from the other fields and recomputed on every mutation.
type Holding struct {
	Base
	AccountID       string          `gorm:"type:uuid;not null;uniqueIndex:idx_holdings_account_symbol" json:"account_id"`
	Symbol          string          `gorm:"size:20;not null;uniqueIndex:idx_holdings_account_symbol" json:"symbol"`
	Amount          decimal.Decimal `gorm:"type:numeric;not null" json:"amount"`
	AverageBuyPrice decimal.Decimal `gorm:"type:numeric;not null" json:"average_buy_price"`
	CurrentPrice    decimal.Decimal `gorm:"type:numeric;not null" json:"current_price"`
	ValueUSD        decimal.Decimal `gorm:"type:numeric;not null" json:"value_in_usd"`
	ProfitLoss      decimal.Decimal `gorm:"type:numeric;not null" json:"profit_loss"`
	ProfitLossPct   decimal.Decimal `gorm:"type:numeric;not null" json:"profit_loss_percentage"`
}

// IsReserve reports whether this is the synthetic USDT balance holding.
func (h *Holding) IsReserve() bool { return h.Symbol == ReserveSymbol }

// Recompute refreshes the derived columns from amount, price, and cost
// basis. P&L is always (currentPrice − averageBuyPrice) × amount, never
// carried over from a previous value.
func (h *Holding) Recompute() {
	h.ValueUSD = h.Amount.Mul(h.CurrentPrice)
	h.ProfitLoss = h.CurrentPrice.Sub(h.AverageBuyPrice).Mul(h.Amount)
	costBasis := h.Amount.Mul(h.AverageBuyPrice)
	if costBasis.IsPositive() {
		h.ProfitLossPct = h.ProfitLoss.Div(costBasis).Mul(decimal.NewFromInt(100))
	} else {
		h.ProfitLossPct = decimal.Zero
	}
}

// NewReserveHolding builds the synthetic USDT holding for an account.
// Reserve price is pinned to 1 so value always equals amount.
func NewReserveHolding(accountID string, amount decimal.Decimal) *Holding {
	h := &Holding{
		AccountID:       accountID,
		Symbol:          ReserveSymbol,
		Amount:          amount,
		AverageBuyPrice: decimal.NewFromInt(1),
		CurrentPrice:    decimal.NewFromInt(1),
	}
	h.Recompute()
	return h
}
