package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/metrics"
	"cryptosim/internal/models"
	"cryptosim/internal/pagination"
)

// tradeService turns submitted orders into atomic ledger mutations.
type tradeService struct {
	db     *gorm.DB
	ledger LedgerServicer
}

// NewTradeService creates a new TradeServicer.
func NewTradeService(db *gorm.DB, ledger LedgerServicer) TradeServicer {
	return &tradeService{db: db, ledger: ledger}
}

// Execute applies one order against the context's ledger. The reserve delta
// is applied first so an insufficient balance is detected before any holding
// is touched; the whole unit runs in one database transaction, so a failure
// at any step leaves no trace (the holdings-check failure rolls the reserve
// mutation back with it).
func (s *tradeService) Execute(userID string, tc models.TradingContext, order Order) (*models.Transaction, error) {
	if err := validateOrder(order); err != nil {
		metrics.TradeFailuresTotal.WithLabelValues("INVALID_INPUT").Inc()
		return nil, err
	}
	if tc.UserID == "" {
		tc.UserID = userID
	}
	if tc.UserID != userID {
		return nil, apperrors.ErrForbidden
	}

	start := time.Now()
	totalValue := order.Quantity.Mul(order.Price)

	// Resolve (or lazily create) the account outside the trade transaction
	// so the per-account lock can be taken before any balance is read.
	var account *models.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		account, txErr = s.ledger.EnsureAccount(tx, tc, decimal.Zero)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	unlock := s.ledger.LockAccount(account.ID)
	defer unlock()

	var record *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		reserveBefore, txErr := currentReserve(tx, account)
		if txErr != nil {
			return txErr
		}

		reserveDelta := totalValue.Neg()
		if order.Side == models.TradeSideSell {
			reserveDelta = totalValue
		}

		// Reserve first: a buy that cannot be paid for must fail before the
		// symbol holding is touched.
		reserve, txErr := s.ledger.ApplyHoldingDelta(tx, account, models.ReserveSymbol, reserveDelta, reserveDelta)
		if txErr != nil {
			return txErr
		}

		symbolAmountDelta := order.Quantity
		symbolValueDelta := totalValue
		if order.Side == models.TradeSideSell {
			held, heldErr := heldPosition(tx, account, order.Symbol)
			if heldErr != nil {
				return heldErr
			}
			if order.Quantity.GreaterThan(held.Amount) {
				return apperrors.ErrInsufficientHoldings
			}
			symbolAmountDelta = order.Quantity.Neg()
			// Value leaves the position in proportion to the fraction sold.
			symbolValueDelta = held.ValueUSD.Mul(order.Quantity).Div(held.Amount).Neg()
		}

		if _, txErr = s.ledger.ApplyHoldingDelta(tx, account, order.Symbol, symbolAmountDelta, symbolValueDelta); txErr != nil {
			return txErr
		}

		record = &models.Transaction{
			UserID:        userID,
			AccountID:     account.ID,
			Side:          order.Side,
			OrderType:     orderTypeOrDefault(order.OrderType),
			Symbol:        order.Symbol,
			Quantity:      order.Quantity,
			Price:         order.Price,
			TotalValue:    totalValue,
			Fee:           order.Fee,
			BalanceBefore: reserveBefore,
			BalanceAfter:  reserve.Amount,
			ExecutedAt:    time.Now().UTC(),
		}
		if txErr := tx.Create(record).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			metrics.TradeFailuresTotal.WithLabelValues(appErr.Code).Inc()
		}
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(order.Side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(order.Side)).Observe(time.Since(start).Seconds())
	return record, nil
}

// GetTransactionByID returns a transaction if it belongs to the user.
func (s *tradeService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var record models.Transaction
	if err := s.db.First(&record, "id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if record.UserID != userID {
		return nil, apperrors.ErrTransactionNotFound
	}
	return &record, nil
}

// ListTransactions returns a paginated, filtered trade history for one
// context, newest first.
func (s *tradeService) ListTransactions(userID string, tc models.TradingContext, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	snapshot, err := s.ledger.GetSnapshot(tc)
	if err != nil {
		return nil, err
	}
	if snapshot.AccountID == "" {
		// Context never touched, so there is nothing to list.
		empty := pagination.NewPageResponse([]models.Transaction{}, page.Page, page.PageSize, 0)
		return &empty, nil
	}

	base := s.db.Model(&models.Transaction{}).
		Where("user_id = ? AND account_id = ?", userID, snapshot.AccountID)
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var records []models.Transaction
	if err := base.Order("executed_at DESC").Scopes(pagination.Paginate(page)).Find(&records).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(records, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyTransactionFilters(query *gorm.DB, filter TransactionFilter) *gorm.DB {
	if filter.FromDate != nil {
		query = query.Where("executed_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("executed_at <= ?", *filter.ToDate)
	}
	if filter.Side != nil {
		query = query.Where("side = ?", *filter.Side)
	}
	if filter.Symbol != nil {
		query = query.Where("symbol = ?", *filter.Symbol)
	}
	return query
}

func validateOrder(order Order) error {
	if order.Side != models.TradeSideBuy && order.Side != models.TradeSideSell {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "order side must be buy or sell")
	}
	if order.Symbol == "" || order.Symbol == models.ReserveSymbol {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid trade symbol")
	}
	if !order.Quantity.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}
	if !order.Price.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "price must be greater than zero")
	}
	if order.Fee.IsNegative() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "fee cannot be negative")
	}
	return nil
}

func orderTypeOrDefault(t models.OrderType) models.OrderType {
	if t == "" {
		return models.OrderTypeMarket
	}
	return t
}

// currentReserve reads the reserve amount for balance_before without
// mutating anything.
func currentReserve(tx *gorm.DB, account *models.Account) (decimal.Decimal, error) {
	var reserve models.Holding
	err := tx.Where("account_id = ? AND symbol = ?", account.ID, models.ReserveSymbol).First(&reserve).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return account.StartingBalance, nil
	}
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return reserve.Amount, nil
}

// heldPosition reads the current non-reserve position for sell validation.
func heldPosition(tx *gorm.DB, account *models.Account, symbol string) (*models.Holding, error) {
	var holding models.Holding
	err := tx.Where("account_id = ? AND symbol = ?", account.ID, symbol).First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInsufficientHoldings
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	holding.Recompute()
	return &holding, nil
}
