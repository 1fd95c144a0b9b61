package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptosim/internal/uuid"
)

// LeaderboardPeriod scopes a ranking computation.
type LeaderboardPeriod string

const (
	LeaderboardPeriodAllTime LeaderboardPeriod = "all_time"
	LeaderboardPeriodWeekly  LeaderboardPeriod = "weekly"
)

// LeaderboardEntry is one derived ranking row. Entries for a scope are
// replaced wholesale on each recompute, so they carry no Base embed and no
// soft deletes.
type LeaderboardEntry struct {
	ID             string            `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string            `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID      string            `gorm:"type:uuid;not null" json:"account_id"`
	CollectionID   *string           `gorm:"type:uuid;index" json:"collection_id,omitempty"`
	Period         LeaderboardPeriod `gorm:"size:16;not null;index" json:"period"`
	Rank           int               `gorm:"not null" json:"rank"`
	PortfolioValue decimal.Decimal   `gorm:"type:numeric;not null" json:"portfolio_value"`
	TotalPnL       decimal.Decimal   `gorm:"type:numeric;not null" json:"total_pnl"`
	TotalPnLPct    decimal.Decimal   `gorm:"type:numeric;not null" json:"total_pnl_percentage"`
	ComputedAt     time.Time         `gorm:"not null" json:"computed_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (e *LeaderboardEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New()
	}
	return nil
}
