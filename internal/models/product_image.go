package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductImage represents an uploaded image of a product
type ProductImage struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID   string    `gorm:"type:char(36);not null;index" json:"product_id"`
	StorageKey  string    `gorm:"type:varchar(255);not null" json:"-"`
	ImageURL    string    `gorm:"type:text;not null" json:"image_url"`
	ContentType string    `gorm:"type:varchar(50);not null" json:"content_type"`
	Size        int64     `gorm:"not null" json:"size"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for ProductImage
func (ProductImage) TableName() string {
	return "product_images"
}

// BeforeCreate assigns a UUID when the caller did not
func (i *ProductImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
