package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnavailablePeriod blocks either one date or an inclusive date range.
// Exactly one of SingleDate or the RangeStart/RangeEnd pair is set.
type UnavailablePeriod struct {
	ID         string     `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID  string     `gorm:"type:char(36);not null;index" json:"product_id"`
	IsRange    bool       `gorm:"not null;default:false" json:"is_range"`
	SingleDate *time.Time `gorm:"type:date;index" json:"single_date,omitempty"`
	RangeStart *time.Time `gorm:"type:date" json:"range_start,omitempty"`
	RangeEnd   *time.Time `gorm:"type:date" json:"range_end,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for UnavailablePeriod
func (UnavailablePeriod) TableName() string {
	return "unavailable_periods"
}

// BeforeCreate assigns a UUID when the caller did not
func (u *UnavailablePeriod) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Covers reports whether date falls on this period
func (u *UnavailablePeriod) Covers(date time.Time) bool {
	day := DateOf(date)
	if !u.IsRange {
		return u.SingleDate != nil && DateOf(*u.SingleDate).Equal(day)
	}
	if u.RangeStart == nil || u.RangeEnd == nil {
		return false
	}
	return !day.Before(DateOf(*u.RangeStart)) && !day.After(DateOf(*u.RangeEnd))
}

// Bounds returns the first and last blocked day
func (u *UnavailablePeriod) Bounds() (time.Time, time.Time, bool) {
	if !u.IsRange {
		if u.SingleDate == nil {
			return time.Time{}, time.Time{}, false
		}
		d := DateOf(*u.SingleDate)
		return d, d, true
	}
	if u.RangeStart == nil || u.RangeEnd == nil {
		return time.Time{}, time.Time{}, false
	}
	return DateOf(*u.RangeStart), DateOf(*u.RangeEnd), true
}
