package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is keyed internally by ID and externally by the identity provider's
// subject claim. CreditsCents is the spendable ledger balance.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID   string    `gorm:"column:external_id;not null;uniqueIndex" json:"-"`
	Email        string    `gorm:"column:email;index" json:"email"`
	CreditsCents int64     `gorm:"column:credits_cents;not null;default:0" json:"credits_cents"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
