package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DurationUnit is the billing granularity of a pricing tier
type DurationUnit string

const (
	DurationDay   DurationUnit = "day"
	DurationWeek  DurationUnit = "week"
	DurationMonth DurationUnit = "month"
)

// DurationUnits lists the accepted units in display order
var DurationUnits = []DurationUnit{DurationDay, DurationWeek, DurationMonth}

// Valid reports whether u is day, week or month
func (u DurationUnit) Valid() bool {
	switch u {
	case DurationDay, DurationWeek, DurationMonth:
		return true
	}
	return false
}

// PricingTier is the price of renting a product for one duration unit.
// A product has at most one tier per unit.
type PricingTier struct {
	ID           string       `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID    string       `gorm:"type:char(36);not null;uniqueIndex:idx_pricing_product_unit" json:"product_id"`
	DurationUnit DurationUnit `gorm:"type:varchar(10);not null;uniqueIndex:idx_pricing_product_unit" json:"duration_unit"`
	BasePrice    int64        `gorm:"not null" json:"base_price"`
	MaxPeriod    *int64       `json:"max_period,omitempty"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for PricingTier
func (PricingTier) TableName() string {
	return "pricing_tiers"
}

// BeforeCreate assigns a UUID when the caller did not
func (t *PricingTier) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
