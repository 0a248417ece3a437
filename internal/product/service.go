package product

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/NiruddeshJatra/Bhara/internal/availability"
	"github.com/NiruddeshJatra/Bhara/internal/events"
	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/validation"
)

// maxSwapAttempts bounds compare-and-swap retries on rating and status updates
const maxSwapAttempts = 3

// Actor is the authenticated caller of a mutation
type Actor struct {
	UserID  string
	IsStaff bool
}

// CreateInput is a new listing together with its first children
type CreateInput struct {
	Details            validation.ProductDetails
	Images             []validation.ImageUpload
	PricingTiers       []validation.PricingTierInput
	UnavailablePeriods []validation.UnavailablePeriodInput
}

// Service implements the product aggregate operations
type Service struct {
	store     Store
	images    ImageStorage
	publisher EventPublisher
	checker   *availability.Checker
	now       func() time.Time
}

// NewService creates a product service. publisher may be nil.
func NewService(store Store, images ImageStorage, publisher EventPublisher) *Service {
	return &Service{
		store:     store,
		images:    images,
		publisher: publisher,
		checker:   availability.NewChecker(store),
		now:       time.Now,
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates and stores a listing owned by the actor
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*models.Product, error) {
	today := s.now()

	details, err := validation.ValidateNewProduct(in.Details, today)
	if err != nil {
		return nil, err
	}
	if _, err := validation.ValidateImages(in.Images); err != nil {
		return nil, err
	}

	p := &models.Product{OwnerID: actor.UserID}
	applyDetails(p, details)

	seen := make(map[string]bool)
	for _, t := range in.PricingTiers {
		tier, err := validation.ValidatePricingTier(t)
		if err != nil {
			return nil, err
		}
		if seen[tier.DurationUnit] {
			return nil, ErrDuplicateTier
		}
		seen[tier.DurationUnit] = true
		p.PricingTiers = append(p.PricingTiers, models.PricingTier{
			DurationUnit: models.DurationUnit(tier.DurationUnit),
			BasePrice:    *tier.BasePrice,
			MaxPeriod:    tier.MaxPeriod,
		})
	}

	for _, raw := range in.UnavailablePeriods {
		period, err := validation.ValidateUnavailablePeriod(raw, today)
		if err != nil {
			return nil, err
		}
		p.UnavailablePeriods = append(p.UnavailablePeriods, toPeriod(period))
	}

	stored, err := s.saveImages(ctx, in.Images)
	if err != nil {
		return nil, err
	}
	p.Images = stored

	if err := s.store.CreateProduct(ctx, p); err != nil {
		s.discardImages(ctx, stored)
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	log.Printf("[Products] Created product id=%s owner=%s images=%d tiers=%d",
		p.ID, p.OwnerID, len(p.Images), len(p.PricingTiers))
	s.publish(ctx, events.ActionCreate, p.ID)
	return p, nil
}

// Get retrieves a product with its images, tiers and periods
func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// List retrieves products matching the filter, newest first
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Product, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListProducts(ctx, f)
}

// View retrieves a product and counts the view unless the viewer owns it
func (s *Service) View(ctx context.Context, viewerID, id string) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewerID != "" && p.IsOwnedBy(viewerID) {
		return p, nil
	}
	if err := s.store.IncrementViews(ctx, id); err != nil {
		log.Printf("[Products] Failed to count view for %s: %v", id, err)
		return p, nil
	}
	p.ViewsCount++
	return p, nil
}

// UpdateDetails applies the supplied listing fields
func (s *Service) UpdateDetails(ctx context.Context, actor Actor, id string, details validation.ProductDetails) (*models.Product, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	if _, err := validation.ValidateProductDetails(details, s.now()); err != nil {
		return nil, err
	}

	fields := detailFields(details)
	if len(fields) > 0 {
		if err := s.store.UpdateProductFields(ctx, id, fields); err != nil {
			return nil, err
		}
		s.publish(ctx, events.ActionUpdate, id)
	}
	return s.store.GetProduct(ctx, id)
}

// Delete removes a product; images, tiers and periods go with it
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	p, err := s.authorize(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.discardImages(ctx, p.Images)

	log.Printf("[Products] Deleted product id=%s by=%s", id, actor.UserID)
	s.publish(ctx, events.ActionDelete, id)
	return nil
}

// AddImages attaches uploads while keeping the total within image limits
func (s *Service) AddImages(ctx context.Context, actor Actor, id string, uploads []validation.ImageUpload) ([]models.ProductImage, error) {
	p, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, &validation.Error{Code: validation.TooFewImages, Field: "images", Message: "At least one image is required."}
	}

	combined := make([]validation.ImageUpload, 0, len(p.Images)+len(uploads))
	for _, img := range p.Images {
		combined = append(combined, validation.ImageUpload{Size: img.Size, ContentType: img.ContentType})
	}
	combined = append(combined, uploads...)
	if _, err := validation.ValidateImages(combined); err != nil {
		return nil, err
	}

	stored, err := s.saveImages(ctx, uploads)
	if err != nil {
		return nil, err
	}
	for i := range stored {
		stored[i].ProductID = id
	}
	if err := s.store.AddImages(ctx, stored); err != nil {
		s.discardImages(ctx, stored)
		return nil, err
	}

	s.publish(ctx, events.ActionUpdate, id)
	return stored, nil
}

// RemoveImage detaches one image. The last image cannot be removed.
func (s *Service) RemoveImage(ctx context.Context, actor Actor, id, imageID string) error {
	p, err := s.authorize(ctx, actor, id)
	if err != nil {
		return err
	}

	found := false
	for _, img := range p.Images {
		if img.ID == imageID {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	if len(p.Images) <= validation.MinImages {
		return &validation.Error{Code: validation.TooFewImages, Field: "images", Message: "At least one image is required."}
	}

	removed, err := s.store.DeleteImage(ctx, id, imageID)
	if err != nil {
		return err
	}
	s.discardImages(ctx, []models.ProductImage{*removed})
	s.publish(ctx, events.ActionUpdate, id)
	return nil
}

// SetPricingTier creates or replaces the tier for the input's duration unit
func (s *Service) SetPricingTier(ctx context.Context, actor Actor, id string, in validation.PricingTierInput) (*models.PricingTier, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	tier, err := validation.ValidatePricingTier(in)
	if err != nil {
		return nil, err
	}

	t := &models.PricingTier{
		ProductID:    id,
		DurationUnit: models.DurationUnit(tier.DurationUnit),
		BasePrice:    *tier.BasePrice,
		MaxPeriod:    tier.MaxPeriod,
	}
	if err := s.store.UpsertPricingTier(ctx, t); err != nil {
		return nil, err
	}
	s.publish(ctx, events.ActionUpdate, id)
	return t, nil
}

// RemovePricingTier deletes the tier for unit
func (s *Service) RemovePricingTier(ctx context.Context, actor Actor, id string, unit models.DurationUnit) error {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeletePricingTier(ctx, id, unit); err != nil {
		return err
	}
	s.publish(ctx, events.ActionUpdate, id)
	return nil
}

// AddUnavailablePeriod blocks a date or range. Overlapping periods are allowed.
func (s *Service) AddUnavailablePeriod(ctx context.Context, actor Actor, id string, in validation.UnavailablePeriodInput) (*models.UnavailablePeriod, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	period, err := validation.ValidateUnavailablePeriod(in, s.now())
	if err != nil {
		return nil, err
	}

	up := toPeriod(period)
	up.ProductID = id
	if err := s.store.AddUnavailablePeriod(ctx, &up); err != nil {
		return nil, err
	}
	return &up, nil
}

// RemoveUnavailablePeriod deletes one period of the product
func (s *Service) RemoveUnavailablePeriod(ctx context.Context, actor Actor, id, periodID string) error {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return err
	}
	return s.store.DeleteUnavailablePeriod(ctx, id, periodID)
}

// IsDateAvailable reports whether the product can be booked on date
func (s *Service) IsDateAvailable(ctx context.Context, id string, date time.Time) (bool, error) {
	if _, err := s.store.GetProduct(ctx, id); err != nil {
		return false, err
	}
	return s.checker.IsDateAvailable(ctx, id, date)
}

// Calendar lists the blocked days of the product within a window
func (s *Service) Calendar(ctx context.Context, id string, from, to time.Time) ([]time.Time, error) {
	if _, err := s.store.GetProduct(ctx, id); err != nil {
		return nil, err
	}
	return s.checker.Calendar(ctx, id, from, to)
}

// IncrementViews adds one to the view counter
func (s *Service) IncrementViews(ctx context.Context, id string) error {
	return s.store.IncrementViews(ctx, id)
}

// IncrementRentals adds one to the rental counter
func (s *Service) IncrementRentals(ctx context.Context, id string) error {
	return s.store.IncrementRentals(ctx, id)
}

// UpdateAverageRating folds rating into the product's running mean.
// Like every other mutation it is limited to the owner and staff.
func (s *Service) UpdateAverageRating(ctx context.Context, actor Actor, id string, rating float64) (*models.Product, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := validation.ValidateRating(rating); err != nil {
		return nil, err
	}
	if err := swapRating(ctx, s.store, id, rating); err != nil {
		return nil, err
	}
	s.publish(ctx, events.ActionUpdate, id)
	return s.store.GetProduct(ctx, id)
}

// RecordRental counts a completed rental. When rating is set it is folded in
// first, using the pre-increment rental count, inside the same transaction.
func (s *Service) RecordRental(ctx context.Context, actor Actor, id string, rating *float64) (*models.Product, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	if rating != nil {
		if err := validation.ValidateRating(*rating); err != nil {
			return nil, err
		}
	}

	err := s.store.InTx(ctx, func(tx Store) error {
		if rating != nil {
			if err := swapRating(ctx, tx, id, *rating); err != nil {
				return err
			}
		}
		return tx.IncrementRentals(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ActionUpdate, id)
	return s.store.GetProduct(ctx, id)
}

// UpdateStatus sets status, message and the status timestamp together
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id, rawStatus string, message *string) (*models.Product, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	status, err := validation.ValidateStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	err = retrySwap(ctx, s.store, id, func(p *models.Product) (bool, error) {
		return s.store.SwapStatus(ctx, id, p.Version, status, message, s.now())
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Products] Status of %s set to %s by %s", id, status, actor.UserID)
	s.publish(ctx, events.ActionUpdate, id)
	return s.store.GetProduct(ctx, id)
}

// authorize loads the product and checks the actor may modify it
func (s *Service) authorize(ctx context.Context, actor Actor, id string) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff && !p.IsOwnedBy(actor.UserID) {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) saveImages(ctx context.Context, uploads []validation.ImageUpload) ([]models.ProductImage, error) {
	stored := make([]models.ProductImage, 0, len(uploads))
	for _, up := range uploads {
		key, url, err := s.images.Save(ctx, "product_images", filepath.Base(up.Filename), up.Data)
		if err != nil {
			s.discardImages(ctx, stored)
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		stored = append(stored, models.ProductImage{
			StorageKey:  key,
			ImageURL:    url,
			ContentType: up.DetectedType(),
			Size:        up.ActualSize(),
		})
	}
	return stored, nil
}

func (s *Service) discardImages(ctx context.Context, images []models.ProductImage) {
	for _, img := range images {
		if img.StorageKey == "" {
			continue
		}
		if err := s.images.Delete(ctx, img.StorageKey); err != nil {
			log.Printf("[Products] Failed to delete image file %s: %v", img.StorageKey, err)
		}
	}
}

func (s *Service) publish(ctx context.Context, action, id string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProductEvent(ctx, action, id); err != nil {
		log.Printf("[Products] Failed to publish %s event for %s: %v", action, id, err)
	}
}

func swapRating(ctx context.Context, store Store, id string, rating float64) error {
	return retrySwap(ctx, store, id, func(p *models.Product) (bool, error) {
		next := NextAverage(p.AverageRating, p.RentalCount, rating)
		return store.SwapAverageRating(ctx, id, p.Version, next)
	})
}

// retrySwap re-reads the row and retries swap while the version keeps moving
func retrySwap(ctx context.Context, store Store, id string, swap func(p *models.Product) (bool, error)) error {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		p, err := store.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		ok, err := swap(p)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrConcurrentUpdate
}

func applyDetails(p *models.Product, d validation.ProductDetails) {
	if d.Title != nil {
		p.Title = *d.Title
	}
	if d.Category != nil {
		p.Category = *d.Category
	}
	if d.ProductType != nil {
		p.ProductType = *d.ProductType
	}
	if d.Description != nil {
		p.Description = *d.Description
	}
	if d.Location != nil {
		p.Location = *d.Location
	}
	if d.SecurityDeposit != nil {
		p.SecurityDeposit = d.SecurityDeposit
	}
	if d.PurchaseYear != nil {
		day := models.DateOf(*d.PurchaseYear)
		p.PurchaseYear = &day
	}
	if d.PurchasePrice != nil {
		p.PurchasePrice = *d.PurchasePrice
	}
	if d.OwnershipHistory != nil {
		p.OwnershipHistory = models.OwnershipHistory(*d.OwnershipHistory)
	}
}

func detailFields(d validation.ProductDetails) map[string]interface{} {
	fields := make(map[string]interface{})
	if d.Title != nil {
		fields["title"] = *d.Title
	}
	if d.Category != nil {
		fields["category"] = *d.Category
	}
	if d.ProductType != nil {
		fields["product_type"] = *d.ProductType
	}
	if d.Description != nil {
		fields["description"] = *d.Description
	}
	if d.Location != nil {
		fields["location"] = *d.Location
	}
	if d.SecurityDeposit != nil {
		fields["security_deposit"] = *d.SecurityDeposit
	}
	if d.PurchaseYear != nil {
		fields["purchase_year"] = models.DateOf(*d.PurchaseYear)
	}
	if d.PurchasePrice != nil {
		fields["purchase_price"] = *d.PurchasePrice
	}
	if d.OwnershipHistory != nil {
		fields["ownership_history"] = *d.OwnershipHistory
	}
	return fields
}

func toPeriod(in validation.UnavailablePeriodInput) models.UnavailablePeriod {
	up := models.UnavailablePeriod{IsRange: in.IsRange}
	if in.IsRange {
		start, end := models.DateOf(*in.RangeStart), models.DateOf(*in.RangeEnd)
		up.RangeStart, up.RangeEnd = &start, &end
	} else {
		day := models.DateOf(*in.SingleDate)
		up.SingleDate = &day
	}
	return up
}

// IsNotFound reports whether err means the product or child row is missing
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
