package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Image is one delivered item of a completed batch. URL is the signed URL
// issued at staging time; readers should re-sign from StorageKey.
type Image struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID       uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_image_batch_position" json:"batch_id"`
	DatasetID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"dataset_id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Position      int            `gorm:"column:position;not null;uniqueIndex:idx_image_batch_position" json:"position"`
	Prompt        string         `gorm:"column:prompt;not null" json:"prompt"`
	StorageKey    string         `gorm:"column:storage_key;not null" json:"storage_key"`
	URL           string         `gorm:"column:url" json:"url"`
	MimeType      string         `gorm:"column:mime_type" json:"mime_type"`
	Width         int            `gorm:"column:width" json:"width"`
	Height        int            `gorm:"column:height" json:"height"`
	Tags          datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	Labels        datatypes.JSON `gorm:"column:labels;type:jsonb" json:"labels"`
	BoundingBoxes datatypes.JSON `gorm:"column:bounding_boxes;type:jsonb" json:"bounding_boxes"`
	LabelError    string         `gorm:"column:label_error" json:"label_error,omitempty"`
	Selected      bool           `gorm:"column:selected;not null;default:false" json:"selected"`
	Rejected      bool           `gorm:"column:rejected;not null;default:false" json:"rejected"`
	Public        bool           `gorm:"column:public;not null;default:false" json:"public"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Image) TableName() string { return "images" }

func (i *Image) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
