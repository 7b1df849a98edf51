package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LedgerReasonGenerationDebit  = "generation_debit"
	LedgerReasonGenerationRefund = "generation_refund"
	LedgerReasonTopUp            = "top_up"
)

// LedgerEntry records one balance movement. AmountCents is negative for
// debits. IdempotencyKey is unique, so replaying a movement is a no-op.
type LedgerEntry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	AmountCents    int64     `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Reason         string    `gorm:"column:reason;not null;index" json:"reason"`
	CreatedAt      time.Time `gorm:"not null;index" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
