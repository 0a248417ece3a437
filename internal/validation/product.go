package validation

import (
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

const (
	MinImages    = 1
	MaxImages    = 10
	MaxImageSize = 5 * 1024 * 1024
)

var productImageTypes = []string{"image/jpeg", "image/png", "image/gif"}

// ImageUpload is an uploaded file as reported by the client.
// When Data is set, size and type are taken from the bytes.
type ImageUpload struct {
	Filename    string
	Size        int64
	ContentType string
	Data        []byte
}

// DetectedType returns the content type sniffed from Data, falling back to the reported one
func (u ImageUpload) DetectedType() string {
	if len(u.Data) > 0 {
		return mimetype.Detect(u.Data).String()
	}
	return u.ContentType
}

// ActualSize returns len(Data) when the bytes are present
func (u ImageUpload) ActualSize() int64 {
	if u.Data != nil {
		return int64(len(u.Data))
	}
	return u.Size
}

// ValidateImages checks the image set of a product
func ValidateImages(images []ImageUpload) ([]ImageUpload, error) {
	if len(images) < MinImages {
		return nil, newError(TooFewImages, "images", "At least one image is required.")
	}
	if len(images) > MaxImages {
		return nil, newError(TooManyImages, "images", "Maximum of 10 images allowed.")
	}

	for _, img := range images {
		if img.ActualSize() > MaxImageSize {
			return nil, newError(ImageTooLarge, "images", "Image size must be less than 5MB.")
		}
		if !mimetype.EqualsAny(img.DetectedType(), productImageTypes...) {
			return nil, newError(UnsupportedFormat, "images", "Invalid image format.")
		}
	}
	return images, nil
}

// PricingTierInput is a pricing tier as submitted by the owner
type PricingTierInput struct {
	DurationUnit string `json:"duration_unit"`
	BasePrice    *int64 `json:"base_price"`
	MaxPeriod    *int64 `json:"max_period"`
}

// ValidatePricingTier checks unit membership and positive amounts
func ValidatePricingTier(tier PricingTierInput) (PricingTierInput, error) {
	if !models.DurationUnit(tier.DurationUnit).Valid() {
		return tier, newError(InvalidDurationUnit, "duration_unit", "Duration unit must be one of: day, week, month")
	}
	if tier.BasePrice == nil || *tier.BasePrice <= 0 {
		return tier, newError(InvalidBasePrice, "base_price", "Base price must be greater than 0.")
	}
	if tier.MaxPeriod != nil && *tier.MaxPeriod <= 0 {
		return tier, newError(InvalidMaxPeriod, "max_period", "Maximum period must be greater than 0.")
	}
	return tier, nil
}

// UnavailablePeriodInput is an unavailable period as submitted by the owner
type UnavailablePeriodInput struct {
	IsRange    bool
	SingleDate *time.Time
	RangeStart *time.Time
	RangeEnd   *time.Time
}

// ValidateUnavailablePeriod checks the shape of a period against today.
// Dates are compared as calendar days.
func ValidateUnavailablePeriod(period UnavailablePeriodInput, today time.Time) (UnavailablePeriodInput, error) {
	day := models.DateOf(today)

	if period.IsRange {
		if period.RangeStart == nil || period.RangeEnd == nil {
			return period, newError(MissingRangeBounds, "range_start", "Range start and end dates are required for date ranges.")
		}
		if period.SingleDate != nil {
			return period, newError(ConflictingSingleDate, "single_date", "Single date cannot be provided if is_range is true.")
		}
		start := models.DateOf(*period.RangeStart)
		end := models.DateOf(*period.RangeEnd)
		if start.After(end) {
			return period, newError(InvertedRange, "range_start", "Start date must be before end date.")
		}
		if start.Before(day) {
			return period, newError(PastRangeStart, "range_start", "Range start date cannot be in the past.")
		}
		return period, nil
	}

	if period.SingleDate == nil {
		return period, newError(MissingSingleDate, "single_date", "Single date is required if is_range is false.")
	}
	if period.RangeStart != nil || period.RangeEnd != nil {
		return period, newError(ConflictingRangeBounds, "range_start", "Range dates cannot be provided if is_range is false.")
	}
	if models.DateOf(*period.SingleDate).Before(day) {
		return period, newError(PastSingleDate, "single_date", "Single date cannot be in the past.")
	}
	return period, nil
}

// ProductDetails carries editable listing fields. Nil means "not supplied".
type ProductDetails struct {
	Title            *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Category         *string    `json:"category" validate:"omitempty,min=1,max=50"`
	ProductType      *string    `json:"product_type" validate:"omitempty,min=1,max=50"`
	Description      *string    `json:"description" validate:"omitempty,max=5000"`
	Location         *string    `json:"location" validate:"omitempty,max=255"`
	SecurityDeposit  *int64     `json:"security_deposit" validate:"omitempty,gte=0"`
	PurchaseYear     *time.Time `json:"purchase_year"`
	PurchasePrice    *int64     `json:"purchase_price" validate:"omitempty,gte=0"`
	OwnershipHistory *string    `json:"ownership_history" validate:"omitempty,oneof=firsthand secondhand"`
}

// ValidateProductDetails checks field shapes and that the purchase date is not in the future
func ValidateProductDetails(details ProductDetails, today time.Time) (ProductDetails, error) {
	if err := checkStruct(details); err != nil {
		return details, err
	}
	if details.PurchaseYear != nil && models.DateOf(*details.PurchaseYear).After(models.DateOf(today)) {
		return details, newError(FuturePurchaseYear, "purchase_year", "Purchase year cannot be in the future.")
	}
	return details, nil
}

// ValidateNewProduct additionally requires the fields a listing cannot exist without
func ValidateNewProduct(details ProductDetails, today time.Time) (ProductDetails, error) {
	errs := FieldErrors{}
	if details.Title == nil || *details.Title == "" {
		errs.Add("title", msgRequired)
	}
	if details.Category == nil || *details.Category == "" {
		errs.Add("category", msgRequired)
	}
	if details.ProductType == nil || *details.ProductType == "" {
		errs.Add("product_type", msgRequired)
	}
	if details.PurchasePrice == nil {
		errs.Add("purchase_price", msgRequired)
	}
	if err := errs.Err(); err != nil {
		return details, err
	}
	return ValidateProductDetails(details, today)
}

// ValidateRating checks a rating is on the 0 to 5 scale
func ValidateRating(rating float64) error {
	if rating < 0 || rating > 5 {
		return newError(InvalidRating, "rating", "Rating must be between 0 and 5.")
	}
	return nil
}

// ValidateStatus checks raw against the known product statuses
func ValidateStatus(raw string) (models.ProductStatus, error) {
	status, err := models.ParseProductStatus(raw)
	if err != nil {
		return "", newError(InvalidStatus, "status", "Invalid status.")
	}
	return status, nil
}
