// Package market is the single funnel for external price lookups. It wraps a
// pluggable Provider with a two-tier (fresh/stale) cache, request
// de-duplication, a rolling per-minute rate limit, and exponential backoff,
// so the rest of the system can call it freely without coordinating.
package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one historical price sample.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// Provider fetches prices from an external market data source.
type Provider interface {
	// GetPrices returns the current USD price for each requested symbol.
	// Symbols the provider does not know are omitted from the result.
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)

	// GetHistoricalPrices returns daily price samples for the last `days` days.
	GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]PricePoint, error)
}
