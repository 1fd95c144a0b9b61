package services

import (
	"crypto/rand"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/models"
	"cryptosim/internal/pagination"
)

// inviteCodeAlphabet avoids ambiguous characters (0/O, 1/I/L).
const inviteCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const inviteCodeLength = 8

// collectionService manages group competitions and their memberships.
type collectionService struct {
	db     *gorm.DB
	ledger LedgerServicer
}

// NewCollectionService creates a new CollectionServicer.
func NewCollectionService(db *gorm.DB, ledger LedgerServicer) CollectionServicer {
	return &collectionService{db: db, ledger: ledger}
}

// CreateCollection creates a collection with a fresh invite code and enrolls
// the owner as its first member, seeding the owner's collection-scoped
// account with the collection's starting balance.
func (s *collectionService) CreateCollection(ownerID, name, description string, startingBalance decimal.Decimal) (*models.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "collection name is required")
	}
	if startingBalance.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "starting balance must be positive")
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	collection := &models.Collection{
		Name:            name,
		Description:     description,
		OwnerID:         ownerID,
		InviteCode:      code,
		StartingBalance: startingBalance,
		IsActive:        true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(collection).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		member := &models.CollectionMember{
			CollectionID: collection.ID,
			UserID:       ownerID,
		}
		if err := tx.Create(member).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		_, err := s.ledger.EnsureAccount(tx, models.CollectionContext(ownerID, collection.ID), startingBalance)
		return err
	})
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// JoinCollection enrolls a user via invite code and creates their
// collection-scoped account with the collection's starting balance.
func (s *collectionService) JoinCollection(userID, inviteCode string) (*models.Collection, error) {
	inviteCode = strings.ToUpper(strings.TrimSpace(inviteCode))
	if inviteCode == "" {
		return nil, apperrors.ErrInvalidInviteCode
	}

	var collection models.Collection
	err := s.db.Where("invite_code = ? AND is_active = ?", inviteCode, true).First(&collection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidInviteCode
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.CollectionMember
		err := tx.Where("collection_id = ? AND user_id = ?", collection.ID, userID).First(&existing).Error
		if err == nil {
			return apperrors.ErrAlreadyMember
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		member := &models.CollectionMember{CollectionID: collection.ID, UserID: userID}
		if err := tx.Create(member).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		account, err := s.ledger.EnsureAccount(tx, models.CollectionContext(userID, collection.ID), collection.StartingBalance)
		if err != nil {
			return err
		}
		// A rejoining member gets their retired account back in play.
		if !account.IsActive {
			if err := tx.Model(account).Update("is_active", true).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

// LeaveCollection removes the membership and retires the member's
// collection-scoped account so it stops appearing in rankings. The account
// row and its history are kept.
func (s *collectionService) LeaveCollection(userID, collectionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().
			Where("collection_id = ? AND user_id = ?", collectionID, userID).
			Delete(&models.CollectionMember{})
		if result.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotMember
		}
		err := tx.Model(&models.Account{}).
			Where("user_id = ? AND collection_id = ?", userID, collectionID).
			Update("is_active", false).Error
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// GetCollectionByID returns a collection with its members. Only members can
// see a collection.
func (s *collectionService) GetCollectionByID(userID, collectionID string) (*models.Collection, error) {
	var member models.CollectionMember
	err := s.db.Where("collection_id = ? AND user_id = ?", collectionID, userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrCollectionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var collection models.Collection
	err = s.db.Preload("Members.User").First(&collection, "id = ?", collectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrCollectionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &collection, nil
}

// ListUserCollections returns the collections the user belongs to.
func (s *collectionService) ListUserCollections(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Collection], error) {
	page.Defaults()

	// Membership rows are removed outright on leave, so the join alone
	// scopes the result.
	base := s.db.Model(&models.Collection{}).
		Joins("JOIN collection_members ON collection_members.collection_id = collections.id").
		Where("collection_members.user_id = ?", userID).
		Where("collections.is_active = ?", true)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var collections []models.Collection
	if err := base.Order("collections.created_at DESC").Scopes(pagination.Paginate(page)).Find(&collections).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(collections, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// generateInviteCode produces a short random code from an unambiguous
// alphabet. Uniqueness is enforced by the database index; a collision
// surfaces as a create error, which is effectively unreachable at this
// keyspace.
func generateInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, inviteCodeLength)
	for i, b := range buf {
		out[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(out), nil
}
