package models

import "github.com/shopspring/decimal"

// Collection is a group competition. Each member trades a separate
// collection-scoped account seeded with the collection's starting balance.
type Collection struct {
	Base
	Name            string          `gorm:"not null" json:"name"`
	Description     string          `json:"description"`
	OwnerID         string          `gorm:"type:uuid;not null" json:"owner_id"`
	InviteCode      string          `gorm:"size:12;uniqueIndex;not null" json:"invite_code"`
	StartingBalance decimal.Decimal `gorm:"type:numeric;not null" json:"starting_balance"`
	IsActive        bool            `gorm:"default:true" json:"is_active"`

	Members []CollectionMember `gorm:"foreignKey:CollectionID" json:"members,omitempty"`
}

// CollectionMember links a user to a collection they compete in.
type CollectionMember struct {
	Base
	CollectionID string `gorm:"type:uuid;not null;uniqueIndex:idx_collection_members" json:"collection_id"`
	UserID       string `gorm:"type:uuid;not null;uniqueIndex:idx_collection_members" json:"user_id"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
