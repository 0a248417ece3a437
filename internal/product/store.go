package product

import (
	"context"
	"errors"
	"time"

	"github.com/NiruddeshJatra/Bhara/internal/availability"
	"github.com/NiruddeshJatra/Bhara/internal/models"
)

var (
	ErrNotFound         = errors.New("product not found")
	ErrForbidden        = errors.New("only the owner can modify this product")
	ErrConcurrentUpdate = errors.New("product was modified concurrently, retry")
	ErrDuplicateTier    = errors.New("a pricing tier for this duration unit already exists")
)

// ListFilter narrows a product listing. Zero values mean "any".
type ListFilter struct {
	Status      models.ProductStatus
	Category    string
	ProductType string
	OwnerID     string
	Limit       int
	Offset      int
}

// Store is the persistence contract of the product aggregate.
// Implementations return ErrNotFound for missing rows.
type Store interface {
	availability.PeriodStore

	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, f ListFilter) ([]models.Product, int64, error)
	UpdateProductFields(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteProduct(ctx context.Context, id string) error

	AddImages(ctx context.Context, images []models.ProductImage) error
	DeleteImage(ctx context.Context, productID, imageID string) (*models.ProductImage, error)

	UpsertPricingTier(ctx context.Context, tier *models.PricingTier) error
	DeletePricingTier(ctx context.Context, productID string, unit models.DurationUnit) error

	AddUnavailablePeriod(ctx context.Context, period *models.UnavailablePeriod) error
	DeleteUnavailablePeriod(ctx context.Context, productID, periodID string) error

	// Atomic counter updates evaluated by the store
	IncrementViews(ctx context.Context, id string) error
	IncrementRentals(ctx context.Context, id string) error

	// Compare-and-swap updates. They report false when version no longer matches.
	SwapAverageRating(ctx context.Context, id string, version int64, rating float64) (bool, error)
	SwapStatus(ctx context.Context, id string, version int64, status models.ProductStatus, message *string, at time.Time) (bool, error)

	// InTx runs fn against a store bound to one transaction
	InTx(ctx context.Context, fn func(Store) error) error
}

// ImageStorage persists uploaded image bytes
type ImageStorage interface {
	Save(ctx context.Context, folder, filename string, data []byte) (key string, url string, err error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher notifies downstream consumers of product changes
type EventPublisher interface {
	PublishProductEvent(ctx context.Context, action, productID string) error
}
