package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"cryptosim/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAccount creates an individual account with its reserve holding
// seeded at the given starting balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID string, startingBalance decimal.Decimal) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:          userID,
		StartingBalance: startingBalance,
		IsActive:        true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}

	reserve := models.NewReserveHolding(account.ID, startingBalance)
	if err := db.Create(reserve).Error; err != nil {
		t.Fatalf("failed to create reserve holding: %v", err)
	}
	return account
}

// CreateTestCollectionAccount creates a collection-scoped account with its
// reserve holding.
func CreateTestCollectionAccount(t *testing.T, db *gorm.DB, userID, collectionID string, startingBalance decimal.Decimal) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:          userID,
		CollectionID:    &collectionID,
		StartingBalance: startingBalance,
		IsActive:        true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test collection account: %v", err)
	}

	reserve := models.NewReserveHolding(account.ID, startingBalance)
	if err := db.Create(reserve).Error; err != nil {
		t.Fatalf("failed to create reserve holding: %v", err)
	}
	return account
}

// CreateTestHolding creates a non-reserve holding with the given amount and
// buy price; current price starts at the buy price.
func CreateTestHolding(t *testing.T, db *gorm.DB, accountID, symbol string, amount, buyPrice decimal.Decimal) *models.Holding {
	t.Helper()

	holding := &models.Holding{
		AccountID:       accountID,
		Symbol:          symbol,
		Amount:          amount,
		AverageBuyPrice: buyPrice,
		CurrentPrice:    buyPrice,
	}
	holding.Recompute()
	if err := db.Create(holding).Error; err != nil {
		t.Fatalf("failed to create test holding: %v", err)
	}
	return holding
}

// CreateTestCollection creates a collection owned by the given user, with
// the owner enrolled as a member.
func CreateTestCollection(t *testing.T, db *gorm.DB, ownerID string, startingBalance decimal.Decimal) *models.Collection {
	t.Helper()

	n := nextID()
	collection := &models.Collection{
		Name:            fmt.Sprintf("Test Collection %d", n),
		OwnerID:         ownerID,
		InviteCode:      fmt.Sprintf("TEST%04d", n),
		StartingBalance: startingBalance,
		IsActive:        true,
	}
	if err := db.Create(collection).Error; err != nil {
		t.Fatalf("failed to create test collection: %v", err)
	}

	member := &models.CollectionMember{
		CollectionID: collection.ID,
		UserID:       ownerID,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to create test collection member: %v", err)
	}
	return collection
}
