package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	// Identity
	ID      string `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID string `gorm:"type:char(36);not null;index" json:"owner_id"`

	// Listing details
	Title            string           `gorm:"type:varchar(255);not null" json:"title"`
	Category         string           `gorm:"type:varchar(50);not null;index" json:"category"`
	ProductType      string           `gorm:"type:varchar(50);not null;index" json:"product_type"`
	Description      string           `gorm:"type:text" json:"description"`
	Location         string           `gorm:"type:varchar(255)" json:"location"`
	SecurityDeposit  *int64           `gorm:"type:bigint" json:"security_deposit,omitempty"`
	PurchaseYear     *time.Time       `gorm:"type:date" json:"purchase_year,omitempty"`
	PurchasePrice    int64            `gorm:"type:bigint;not null;default:0" json:"purchase_price"`
	OwnershipHistory OwnershipHistory `gorm:"type:varchar(20);not null;default:'firsthand'" json:"ownership_history"`

	// Lifecycle
	Status          ProductStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	StatusMessage   *string       `gorm:"type:text" json:"status_message,omitempty"`
	StatusUpdatedAt *time.Time    `gorm:"type:datetime" json:"status_updated_at,omitempty"`

	// Counters and rating
	ViewsCount    int64    `gorm:"not null;default:0" json:"views_count"`
	RentalCount   int64    `gorm:"not null;default:0" json:"rental_count"`
	AverageRating *float64 `gorm:"type:decimal(3,2)" json:"average_rating"`

	// Row version for compare-and-swap updates
	Version int64 `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime;index:idx_products_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:datetime;not null;autoUpdateTime" json:"updated_at"`

	Images             []ProductImage      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"images"`
	PricingTiers       []PricingTier       `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"pricing_tiers"`
	UnavailablePeriods []UnavailablePeriod `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"unavailable_periods"`
}

// TableName specifies the table name for Product
func (Product) TableName() string {
	return "products"
}

// BeforeCreate assigns a UUID when the caller did not
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProductStatusDraft
	}
	if p.OwnershipHistory == "" {
		p.OwnershipHistory = OwnershipFirsthand
	}
	return nil
}

// GetAverageRating returns the average rating, or 0 before the first rating
func (p *Product) GetAverageRating() float64 {
	if p.AverageRating == nil {
		return 0
	}
	return *p.AverageRating
}

// IsOwnedBy reports whether userID owns the product
func (p *Product) IsOwnedBy(userID string) bool {
	return p.OwnerID != "" && p.OwnerID == userID
}

// MinDailyPrice returns the base price of the day tier, if one exists
func (p *Product) MinDailyPrice() *int64 {
	for i := range p.PricingTiers {
		if p.PricingTiers[i].DurationUnit == DurationDay {
			price := p.PricingTiers[i].BasePrice
			return &price
		}
	}
	return nil
}

func (p *Product) String() string {
	return p.Title
}

// ProductStatus is the lifecycle state of a listing
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusPending  ProductStatus = "pending"
	ProductStatusActive   ProductStatus = "active"
	ProductStatusRejected ProductStatus = "rejected"
	ProductStatusRented   ProductStatus = "rented"
	ProductStatusInactive ProductStatus = "inactive"
	ProductStatusArchived ProductStatus = "archived"
)

var productStatuses = map[ProductStatus]bool{
	ProductStatusDraft:    true,
	ProductStatusPending:  true,
	ProductStatusActive:   true,
	ProductStatusRejected: true,
	ProductStatusRented:   true,
	ProductStatusInactive: true,
	ProductStatusArchived: true,
}

// Valid reports whether s is one of the known statuses
func (s ProductStatus) Valid() bool {
	return productStatuses[s]
}

// ParseProductStatus converts a raw string into a known status
func ParseProductStatus(raw string) (ProductStatus, error) {
	s := ProductStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown product status %q", raw)
	}
	return s, nil
}

// OwnershipHistory tags how the owner acquired the item
type OwnershipHistory string

const (
	OwnershipFirsthand  OwnershipHistory = "firsthand"
	OwnershipSecondhand OwnershipHistory = "secondhand"
)

// Valid reports whether h is a known ownership tag
func (h OwnershipHistory) Valid() bool {
	return h == OwnershipFirsthand || h == OwnershipSecondhand
}
