package models

import "time"

// DeleteLog records a product that was physically deleted
type DeleteLog struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID  string     `gorm:"type:char(36);not null;index" json:"product_id"`
	OwnerID    string     `gorm:"type:char(36);not null" json:"owner_id"`
	Title      string     `gorm:"type:varchar(255)" json:"title"`
	ArchivedAt *time.Time `gorm:"type:datetime" json:"archived_at,omitempty"`
	DeletedAt  time.Time  `gorm:"type:datetime;not null;autoCreateTime;index" json:"deleted_at"`
	Reason     string     `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonRetention = "archived_retention"
	DeleteReasonOwner     = "owner_deletion"
	DeleteReasonManual    = "manual_deletion"
)
