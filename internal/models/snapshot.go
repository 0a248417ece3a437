package models

import "time"

// ProductSnapshot represents a daily snapshot of a product's state
type ProductSnapshot struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID  string    `gorm:"type:char(36);not null;index:idx_snapshot_product_date" json:"product_id"`
	SnapshotAt time.Time `gorm:"type:date;not null;index:idx_snapshot_product_date,priority:2;index:idx_snapshot_date" json:"snapshot_at"`

	Status        string   `gorm:"type:varchar(20);not null" json:"status"`
	ViewsCount    int64    `gorm:"not null" json:"views_count"`
	RentalCount   int64    `gorm:"not null" json:"rental_count"`
	AverageRating *float64 `gorm:"type:decimal(3,2)" json:"average_rating,omitempty"`
	MinDailyPrice *int64   `json:"min_daily_price,omitempty"`
	ImageCount    int      `gorm:"not null" json:"image_count"`

	HasChanged bool   `gorm:"default:false" json:"has_changed"`
	ChangeNote string `gorm:"type:text" json:"change_note,omitempty"`

	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name
func (ProductSnapshot) TableName() string {
	return "product_snapshots"
}

// ProductChange represents a difference between two consecutive snapshots
type ProductChange struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID       string    `gorm:"type:char(36);not null;index" json:"product_id"`
	SnapshotID      uint      `gorm:"not null" json:"snapshot_id"`
	ChangeType      string    `gorm:"type:varchar(50);not null" json:"change_type"`
	OldValue        string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue        string    `gorm:"type:text" json:"new_value,omitempty"`
	ChangeMagnitude *float64  `gorm:"type:decimal(10,2)" json:"change_magnitude,omitempty"`
	DetectedAt      time.Time `gorm:"type:datetime;not null;autoCreateTime;index" json:"detected_at"`
}

// TableName specifies the table name
func (ProductChange) TableName() string {
	return "product_changes"
}

// ChangeType constants
const (
	ChangeTypeStatus   = "status_changed"
	ChangeTypeRating   = "rating_changed"
	ChangeTypePrice    = "daily_price_changed"
	ChangeTypeImages   = "images_changed"
	ChangeTypeNew      = "new_product"
	ChangeTypeArchived = "product_archived"
)
