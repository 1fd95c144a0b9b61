package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"cryptosim/internal/models"
	"cryptosim/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, displayName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// LedgerServicer is the single source of truth for balances and holdings.
// All mutation of a context's holdings goes through it; callers never write
// holding rows directly.
type LedgerServicer interface {
	// GetSnapshot reads the context's holdings and derives the aggregate
	// view. The read is idempotent: a context that has never been touched
	// gets a synthesized default snapshot without anything being persisted.
	GetSnapshot(tc models.TradingContext) (*models.AccountSnapshot, error)

	// EnsureAccount lazily creates the account row plus its reserve holding
	// inside the given transaction, or returns the existing row.
	EnsureAccount(tx *gorm.DB, tc models.TradingContext, startingBalance decimal.Decimal) (*models.Account, error)

	// ApplyHoldingDelta mutates one holding of one account inside the given
	// transaction. Reserve mutations that would go negative fail with
	// INSUFFICIENT_BALANCE before anything is written; non-reserve
	// reductions below zero fail with INSUFFICIENT_HOLDINGS. A non-reserve
	// holding whose amount reaches zero is deleted.
	ApplyHoldingDelta(tx *gorm.DB, account *models.Account, symbol string, amountDelta, valueDelta decimal.Decimal) (*models.Holding, error)

	// UpdateCurrentPrice refreshes one holding's market price and derived
	// P&L fields. It never touches amount or average buy price.
	UpdateCurrentPrice(accountID, symbol string, price decimal.Decimal) error

	// ListHeldSymbols returns every non-reserve symbol held by any account.
	ListHeldSymbols() ([]string, error)

	// ListAccountSnapshots derives a snapshot for every active account,
	// for consumption by the leaderboard ranker.
	ListAccountSnapshots(period models.LeaderboardPeriod) ([]models.AccountSnapshot, error)

	// ResetUserData wipes all accounts, holdings, and transactions for a
	// user. The next touch lazily re-initializes a default account.
	ResetUserData(userID string) error

	// LockAccount serializes mutations on one account; the returned func
	// releases the lock.
	LockAccount(accountID string) func()
}

// Order is a user-submitted trade request.
type Order struct {
	Side      models.TradeSide
	OrderType models.OrderType
	Symbol    string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Side     *models.TradeSide
	Symbol   *string
}

// TradeServicer turns submitted orders into atomic ledger mutations.
type TradeServicer interface {
	// Execute validates and applies one order against the context's ledger,
	// producing exactly one Transaction record, or fails with no state
	// change at all.
	Execute(userID string, tc models.TradingContext, order Order) (*models.Transaction, error)

	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	ListTransactions(userID string, tc models.TradingContext, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
}

// LeaderboardServicer recomputes rank orderings from ledger snapshots.
type LeaderboardServicer interface {
	// Recompute replaces the ranking rows for the period: one global
	// ranking over individual contexts plus one per collection.
	Recompute(period models.LeaderboardPeriod, at time.Time) (int, error)

	ListTop(period models.LeaderboardPeriod, collectionID *string, limit int) ([]models.LeaderboardEntry, error)
}

// CollectionServicer manages group competitions and their memberships.
type CollectionServicer interface {
	CreateCollection(ownerID, name, description string, startingBalance decimal.Decimal) (*models.Collection, error)
	JoinCollection(userID, inviteCode string) (*models.Collection, error)
	LeaveCollection(userID, collectionID string) error
	GetCollectionByID(userID, collectionID string) (*models.Collection, error)
	ListUserCollections(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Collection], error)
}

// PriceSource is the slice of the market gateway the reconciler depends on.
type PriceSource interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
