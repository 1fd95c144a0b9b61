package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/models"
)

// ledgerService maintains one balance+holdings snapshot per trading context.
type ledgerService struct {
	db              *gorm.DB
	startingBalance decimal.Decimal
	accountLocks    *keyedMutex
}

// NewLedgerService creates a new LedgerServicer. startingBalance seeds the
// reserve holding of lazily created individual accounts.
func NewLedgerService(db *gorm.DB, startingBalance decimal.Decimal) LedgerServicer {
	return &ledgerService{
		db:              db,
		startingBalance: startingBalance,
		accountLocks:    newKeyedMutex(),
	}
}

// LockAccount serializes mutations for one account across trade execution
// and reconciliation price refreshes.
func (s *ledgerService) LockAccount(accountID string) func() {
	return s.accountLocks.Lock(accountID)
}

// GetSnapshot derives the aggregate view of a context. Aggregates are always
// recomputed from holdings, never read from stored totals, so repeated calls
// without an intervening mutation return identical values.
func (s *ledgerService) GetSnapshot(tc models.TradingContext) (*models.AccountSnapshot, error) {
	account, err := s.findAccount(s.db, tc)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Context never touched: synthesize the default view without
			// writing anything.
			return s.defaultSnapshot(tc), nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var holdings []models.Holding
	if err := s.db.Where("account_id = ?", account.ID).Order("symbol ASC").Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return buildSnapshot(account, holdings), nil
}

// EnsureAccount returns the context's account row, creating it together with
// its reserve holding on first touch. Safe under concurrent callers: the
// unique (user_id, collection_id) index makes the create race lose cleanly.
func (s *ledgerService) EnsureAccount(tx *gorm.DB, tc models.TradingContext, startingBalance decimal.Decimal) (*models.Account, error) {
	account, err := s.findAccount(tx, tc)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if startingBalance.LessThanOrEqual(decimal.Zero) {
		startingBalance = s.startingBalance
	}

	account = &models.Account{
		UserID:          tc.UserID,
		CollectionID:    tc.CollectionID,
		StartingBalance: startingBalance,
		IsActive:        true,
	}
	if err := tx.Create(account).Error; err != nil {
		// Lost a create race: re-read the winner's row.
		if existing, findErr := s.findAccount(tx, tc); findErr == nil {
			return existing, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrStoreConflict, err)
	}

	reserve := models.NewReserveHolding(account.ID, startingBalance)
	if err := tx.Create(reserve).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return account, nil
}

// ApplyHoldingDelta mutates one holding row. For the reserve symbol the only
// rule is the non-negative floor. For other symbols, accumulation blends the
// average cost before the amount is overwritten, and reduction leaves the
// cost basis untouched (realized gains surface through P&L at the trade
// price, not by moving the basis).
func (s *ledgerService) ApplyHoldingDelta(tx *gorm.DB, account *models.Account, symbol string, amountDelta, valueDelta decimal.Decimal) (*models.Holding, error) {
	if symbol == models.ReserveSymbol {
		return s.applyReserveDelta(tx, account, amountDelta)
	}

	var holding models.Holding
	err := tx.Where("account_id = ? AND symbol = ?", account.ID, symbol).First(&holding).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if amountDelta.LessThanOrEqual(decimal.Zero) {
			return nil, apperrors.ErrInsufficientHoldings
		}
		created := &models.Holding{
			AccountID:       account.ID,
			Symbol:          symbol,
			Amount:          amountDelta,
			AverageBuyPrice: valueDelta.Div(amountDelta),
			CurrentPrice:    valueDelta.Div(amountDelta),
		}
		created.Recompute()
		if err := tx.Create(created).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return created, nil
	case err != nil:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if amountDelta.IsPositive() {
		// Moving-average cost basis. The blend must use the pre-mutation
		// amount, so compute it before the amount field is overwritten.
		newAmount := holding.Amount.Add(amountDelta)
		oldCost := holding.Amount.Mul(holding.AverageBuyPrice)
		holding.AverageBuyPrice = oldCost.Add(valueDelta).Div(newAmount)
		holding.Amount = newAmount
		holding.CurrentPrice = valueDelta.Div(amountDelta)
	} else {
		sold := amountDelta.Neg()
		if sold.GreaterThan(holding.Amount) {
			return nil, apperrors.ErrInsufficientHoldings
		}
		newAmount := holding.Amount.Sub(sold)
		if newAmount.LessThanOrEqual(decimal.Zero) {
			// No zero-amount ghost rows: the position is gone entirely.
			if err := tx.Unscoped().Delete(&holding).Error; err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			holding.Amount = decimal.Zero
			holding.Recompute()
			return &holding, nil
		}
		// Average buy price is deliberately unchanged on reduction; the
		// value shrinks proportionally through the amount.
		holding.Amount = newAmount
	}

	holding.Recompute()
	if err := tx.Save(&holding).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &holding, nil
}

// applyReserveDelta adjusts the USDT balance, failing atomically if the
// result would be negative.
func (s *ledgerService) applyReserveDelta(tx *gorm.DB, account *models.Account, amountDelta decimal.Decimal) (*models.Holding, error) {
	var reserve models.Holding
	err := tx.Where("account_id = ? AND symbol = ?", account.ID, models.ReserveSymbol).First(&reserve).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := models.NewReserveHolding(account.ID, account.StartingBalance)
		reserve = *created
		err = nil
	} else if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	newAmount := reserve.Amount.Add(amountDelta)
	if newAmount.IsNegative() {
		return nil, apperrors.ErrInsufficientBalance
	}

	reserve.Amount = newAmount
	reserve.Recompute()
	if err := tx.Save(&reserve).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &reserve, nil
}

// UpdateCurrentPrice is a side-effect-only price refresh: it updates the
// market price and derived fields of one holding and nothing else.
func (s *ledgerService) UpdateCurrentPrice(accountID, symbol string, price decimal.Decimal) error {
	if symbol == models.ReserveSymbol {
		// Reserve price is pinned to 1.
		return nil
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "price must be positive")
	}

	unlock := s.LockAccount(accountID)
	defer unlock()

	var holding models.Holding
	err := s.db.Where("account_id = ? AND symbol = ?", accountID, symbol).First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Holding sold off since the caller listed it; nothing to refresh.
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	holding.CurrentPrice = price
	holding.Recompute()
	if err := s.db.Save(&holding).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// ListHeldSymbols returns the distinct non-reserve symbols across all
// holdings, the set the reconciler needs prices for.
func (s *ledgerService) ListHeldSymbols() ([]string, error) {
	var symbols []string
	if err := s.db.Model(&models.Holding{}).
		Where("symbol <> ?", models.ReserveSymbol).
		Distinct("symbol").
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return symbols, nil
}

// ListAccountSnapshots derives a snapshot for every active account.
func (s *ledgerService) ListAccountSnapshots(period models.LeaderboardPeriod) ([]models.AccountSnapshot, error) {
	var accounts []models.Account
	if err := s.db.Where("is_active = ?", true).Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(accounts) == 0 {
		return []models.AccountSnapshot{}, nil
	}

	accountIDs := make([]string, len(accounts))
	for i := range accounts {
		accountIDs[i] = accounts[i].ID
	}

	var holdings []models.Holding
	if err := s.db.Where("account_id IN ?", accountIDs).Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	byAccount := make(map[string][]models.Holding, len(accounts))
	for _, h := range holdings {
		byAccount[h.AccountID] = append(byAccount[h.AccountID], h)
	}

	snapshots := make([]models.AccountSnapshot, 0, len(accounts))
	for i := range accounts {
		snapshots = append(snapshots, *buildSnapshot(&accounts[i], byAccount[accounts[i].ID]))
	}
	return snapshots, nil
}

// ResetUserData permanently removes every account, holding, and transaction
// belonging to the user. Transactions are otherwise write-once; this is the
// single sanctioned delete path.
func (s *ledgerService) ResetUserData(userID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var accountIDs []string
		if err := tx.Model(&models.Account{}).Where("user_id = ?", userID).
			Pluck("id", &accountIDs).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if len(accountIDs) > 0 {
			if err := tx.Unscoped().Where("account_id IN ?", accountIDs).Delete(&models.Holding{}).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Transaction{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&models.Account{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// findAccount resolves the account row for a context. NULL collection IDs
// need the IS NULL form, so the two context kinds take different predicates.
func (s *ledgerService) findAccount(tx *gorm.DB, tc models.TradingContext) (*models.Account, error) {
	var account models.Account
	query := tx.Where("user_id = ?", tc.UserID)
	if tc.CollectionID == nil {
		query = query.Where("collection_id IS NULL")
	} else {
		query = query.Where("collection_id = ?", *tc.CollectionID)
	}
	if err := query.First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// defaultSnapshot is the view of a context that has never been traded in:
// the full starting balance in reserve and no crypto holdings.
func (s *ledgerService) defaultSnapshot(tc models.TradingContext) *models.AccountSnapshot {
	reserve := models.NewReserveHolding("", s.startingBalance)
	return &models.AccountSnapshot{
		UserID:              tc.UserID,
		CollectionID:        tc.CollectionID,
		USDTBalance:         s.startingBalance,
		TotalPortfolioValue: s.startingBalance,
		StartingBalance:     s.startingBalance,
		TotalPnL:            decimal.Zero,
		TotalPnLPercentage:  decimal.Zero,
		Holdings:            []models.Holding{*reserve},
	}
}

// buildSnapshot recomputes every derived figure from the holding rows.
func buildSnapshot(account *models.Account, holdings []models.Holding) *models.AccountSnapshot {
	snapshot := &models.AccountSnapshot{
		AccountID:       account.ID,
		UserID:          account.UserID,
		CollectionID:    account.CollectionID,
		StartingBalance: account.StartingBalance,
	}

	hasReserve := false
	total := decimal.Zero
	for i := range holdings {
		holdings[i].Recompute()
		total = total.Add(holdings[i].ValueUSD)
		if holdings[i].IsReserve() {
			hasReserve = true
			snapshot.USDTBalance = holdings[i].Amount
		}
	}
	if !hasReserve {
		// Repair the view without writing: a missing reserve reads as the
		// untouched starting balance.
		reserve := models.NewReserveHolding(account.ID, account.StartingBalance)
		holdings = append([]models.Holding{*reserve}, holdings...)
		snapshot.USDTBalance = account.StartingBalance
		total = total.Add(reserve.ValueUSD)
	}

	snapshot.Holdings = holdings
	snapshot.TotalPortfolioValue = total
	snapshot.TotalPnL = total.Sub(account.StartingBalance)
	if account.StartingBalance.IsPositive() {
		snapshot.TotalPnLPercentage = snapshot.TotalPnL.Div(account.StartingBalance).Mul(decimal.NewFromInt(100))
	}
	return snapshot
}
