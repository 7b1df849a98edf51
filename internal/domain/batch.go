package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

// Batch is the durable record of one generation request. It is created when
// credits are reserved and finalized either as completed or failed.
type Batch struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ExecutionID       string     `gorm:"column:execution_id;not null;uniqueIndex" json:"execution_id"`
	UserID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	DatasetID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"dataset_id"`
	RequestText       string     `gorm:"column:request_text;not null" json:"request_text"`
	Exclusions        string     `gorm:"column:exclusions" json:"exclusions,omitempty"`
	RequestedCount    int        `gorm:"column:requested_count;not null" json:"requested_count"`
	CostCents         int64      `gorm:"column:cost_cents;not null" json:"cost_cents"`
	RefundedCents     int64      `gorm:"column:refunded_cents;not null;default:0" json:"refunded_cents"`
	Status            string     `gorm:"column:status;not null;index" json:"status"`
	Step              string     `gorm:"column:step;not null" json:"step"`
	Progress          int        `gorm:"column:progress;not null;default:0" json:"progress"`
	ExternalJobHandle string     `gorm:"column:external_job_handle" json:"external_job_handle,omitempty"`
	ImageCount        int        `gorm:"column:image_count;not null;default:0" json:"image_count"`
	Error             string     `gorm:"column:error" json:"error,omitempty"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

func (Batch) TableName() string { return "batches" }

func (b *Batch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Batch) Terminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusFailed
}
