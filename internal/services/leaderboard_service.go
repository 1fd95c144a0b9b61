package services

import (
	"sort"
	"time"

	"gorm.io/gorm"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/models"
)

// leaderboardService derives rank orderings from ledger snapshots.
type leaderboardService struct {
	db     *gorm.DB
	ledger LedgerServicer
}

// NewLeaderboardService creates a new LeaderboardServicer.
func NewLeaderboardService(db *gorm.DB, ledger LedgerServicer) LeaderboardServicer {
	return &leaderboardService{db: db, ledger: ledger}
}

// Recompute rebuilds every ranking for the period from current snapshots:
// one global ranking over individual contexts plus one per collection. The
// period's rows are replaced wholesale inside a single transaction, so
// readers never observe a half-built ranking.
func (s *leaderboardService) Recompute(period models.LeaderboardPeriod, at time.Time) (int, error) {
	snapshots, err := s.ledger.ListAccountSnapshots(period)
	if err != nil {
		return 0, err
	}

	scopes := make(map[string][]models.AccountSnapshot)
	for _, snap := range snapshots {
		key := "" // global individual ranking
		if snap.CollectionID != nil {
			key = *snap.CollectionID
		}
		scopes[key] = append(scopes[key], snap)
	}

	entries := make([]models.LeaderboardEntry, 0, len(snapshots))
	for _, scoped := range scopes {
		rankSnapshots(period, scoped)
		for rank, snap := range scoped {
			entries = append(entries, models.LeaderboardEntry{
				UserID:         snap.UserID,
				AccountID:      snap.AccountID,
				CollectionID:   snap.CollectionID,
				Period:         period,
				Rank:           rank + 1,
				PortfolioValue: snap.TotalPortfolioValue,
				TotalPnL:       snap.TotalPnL,
				TotalPnLPct:    snap.TotalPnLPercentage,
				ComputedAt:     at,
			})
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("period = ?", period).Delete(&models.LeaderboardEntry{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, 200).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// rankSnapshots orders one scope in place. All-time ranks by absolute P&L;
// weekly ranks by P&L percentage so differing starting balances compete
// fairly. Ties break on portfolio value, then user ID for a stable order.
func rankSnapshots(period models.LeaderboardPeriod, scoped []models.AccountSnapshot) {
	sort.SliceStable(scoped, func(i, j int) bool {
		a, b := scoped[i], scoped[j]
		var cmp int
		if period == models.LeaderboardPeriodWeekly {
			cmp = a.TotalPnLPercentage.Cmp(b.TotalPnLPercentage)
		} else {
			cmp = a.TotalPnL.Cmp(b.TotalPnL)
		}
		if cmp != 0 {
			return cmp > 0
		}
		if c := a.TotalPortfolioValue.Cmp(b.TotalPortfolioValue); c != 0 {
			return c > 0
		}
		return a.UserID < b.UserID
	})
}

// ListTop returns the top entries for a period. A nil collectionID selects
// the global individual ranking.
func (s *leaderboardService) ListTop(period models.LeaderboardPeriod, collectionID *string, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.Where("period = ?", period)
	if collectionID == nil {
		query = query.Where("collection_id IS NULL")
	} else {
		query = query.Where("collection_id = ?", *collectionID)
	}

	var entries []models.LeaderboardEntry
	if err := query.Order("rank ASC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return entries, nil
}
