package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func i64(v int64) *int64 { return &v }

func str(s string) *string { return &s }

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	gifBytes  = []byte("GIF89a\x01\x00\x01\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func images(n int) []ImageUpload {
	out := make([]ImageUpload, n)
	for i := range out {
		out[i] = ImageUpload{Filename: "photo.png", Data: pngBytes}
	}
	return out
}

func TestValidateImages(t *testing.T) {
	tests := []struct {
		name   string
		images []ImageUpload
		code   Code
	}{
		{"no images", nil, TooFewImages},
		{"eleven images", images(11), TooManyImages},
		{"one byte over limit", []ImageUpload{{Size: MaxImageSize + 1, ContentType: "image/jpeg"}}, ImageTooLarge},
		{"reported pdf", []ImageUpload{{Size: 100, ContentType: "application/pdf"}}, UnsupportedFormat},
		{"sniffed text behind image header", []ImageUpload{{ContentType: "image/png", Data: []byte("plain text")}}, UnsupportedFormat},
		{"webp not accepted for listings", []ImageUpload{{Size: 100, ContentType: "image/webp"}}, UnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateImages(tt.images)
			require.Error(t, err)
			require.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestValidateImages_Accepts(t *testing.T) {
	in := []ImageUpload{
		{Filename: "a.png", Data: pngBytes},
		{Filename: "b.gif", Data: gifBytes},
		{Filename: "c.jpg", Data: jpegBytes},
		{Filename: "d.jpg", Size: MaxImageSize, ContentType: "image/jpeg"},
	}
	out, err := ValidateImages(in)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = ValidateImages(images(MaxImages))
	require.NoError(t, err)
}

func TestValidatePricingTier(t *testing.T) {
	tests := []struct {
		name string
		tier PricingTierInput
		code Code
	}{
		{"unknown unit", PricingTierInput{DurationUnit: "year", BasePrice: i64(100)}, InvalidDurationUnit},
		{"empty unit", PricingTierInput{BasePrice: i64(100)}, InvalidDurationUnit},
		{"zero price", PricingTierInput{DurationUnit: "day", BasePrice: i64(0)}, InvalidBasePrice},
		{"missing price", PricingTierInput{DurationUnit: "week"}, InvalidBasePrice},
		{"negative max period", PricingTierInput{DurationUnit: "month", BasePrice: i64(10), MaxPeriod: i64(-1)}, InvalidMaxPeriod},
		{"zero max period", PricingTierInput{DurationUnit: "month", BasePrice: i64(10), MaxPeriod: i64(0)}, InvalidMaxPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidatePricingTier(tt.tier)
			require.Equal(t, tt.code, CodeOf(err))
		})
	}

	ok := PricingTierInput{DurationUnit: "week", BasePrice: i64(1500), MaxPeriod: i64(4)}
	out, err := ValidatePricingTier(ok)
	require.NoError(t, err)
	require.Equal(t, ok, out)

	_, err = ValidatePricingTier(PricingTierInput{DurationUnit: "day", BasePrice: i64(1)})
	require.NoError(t, err)
}

func TestValidateUnavailablePeriod(t *testing.T) {
	tests := []struct {
		name   string
		period UnavailablePeriodInput
		code   Code
	}{
		{"range missing end", UnavailablePeriodInput{IsRange: true, RangeStart: day(2099, 1, 1)}, MissingRangeBounds},
		{"range with single date", UnavailablePeriodInput{IsRange: true, RangeStart: day(2099, 1, 1), RangeEnd: day(2099, 1, 10), SingleDate: day(2099, 1, 5)}, ConflictingSingleDate},
		{"inverted range", UnavailablePeriodInput{IsRange: true, RangeStart: day(2099, 1, 10), RangeEnd: day(2099, 1, 1)}, InvertedRange},
		{"range starting yesterday", UnavailablePeriodInput{IsRange: true, RangeStart: day(2024, 6, 14), RangeEnd: day(2024, 6, 20)}, PastRangeStart},
		{"single missing date", UnavailablePeriodInput{}, MissingSingleDate},
		{"single with range start", UnavailablePeriodInput{SingleDate: day(2099, 1, 1), RangeStart: day(2099, 1, 1)}, ConflictingRangeBounds},
		{"single with range end", UnavailablePeriodInput{SingleDate: day(2099, 1, 1), RangeEnd: day(2099, 1, 1)}, ConflictingRangeBounds},
		{"single in the past", UnavailablePeriodInput{SingleDate: day(2024, 6, 1)}, PastSingleDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateUnavailablePeriod(tt.period, today)
			require.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestValidateUnavailablePeriod_Accepts(t *testing.T) {
	valid := []UnavailablePeriodInput{
		{IsRange: true, RangeStart: day(2099, 1, 1), RangeEnd: day(2099, 1, 10)},
		{IsRange: true, RangeStart: day(2024, 6, 15), RangeEnd: day(2024, 6, 15)},
		{SingleDate: day(2024, 6, 15)},
		{SingleDate: day(2099, 12, 31)},
	}
	for _, p := range valid {
		out, err := ValidateUnavailablePeriod(p, today)
		require.NoError(t, err)
		require.Equal(t, p, out)
	}
}

func TestValidateProductDetails(t *testing.T) {
	_, err := ValidateProductDetails(ProductDetails{PurchaseYear: day(2024, 6, 16)}, today)
	require.Equal(t, FuturePurchaseYear, CodeOf(err))

	_, err = ValidateProductDetails(ProductDetails{PurchaseYear: day(2024, 6, 15)}, today)
	require.NoError(t, err)

	_, err = ValidateProductDetails(ProductDetails{OwnershipHistory: str("borrowed")}, today)
	fields, ok := Fields(err)
	require.True(t, ok)
	require.Contains(t, fields, "ownership_history")

	_, err = ValidateProductDetails(ProductDetails{SecurityDeposit: i64(-5)}, today)
	fields, ok = Fields(err)
	require.True(t, ok)
	require.Contains(t, fields, "security_deposit")
}

func TestValidateNewProduct_RequiresCoreFields(t *testing.T) {
	_, err := ValidateNewProduct(ProductDetails{Title: str("Camera")}, today)
	fields, ok := Fields(err)
	require.True(t, ok)
	require.Equal(t, "This field is required.", fields["category"])
	require.Equal(t, "This field is required.", fields["product_type"])
	require.Equal(t, "This field is required.", fields["purchase_price"])
	require.NotContains(t, fields, "title")

	_, err = ValidateNewProduct(ProductDetails{
		Title:         str("Camera"),
		Category:      str("electronics"),
		ProductType:   str("camera"),
		PurchasePrice: i64(45000),
	}, today)
	require.NoError(t, err)
}

func TestValidateRatingAndStatus(t *testing.T) {
	require.NoError(t, ValidateRating(0))
	require.NoError(t, ValidateRating(5))
	require.Equal(t, InvalidRating, CodeOf(ValidateRating(5.01)))
	require.Equal(t, InvalidRating, CodeOf(ValidateRating(-1)))

	s, err := ValidateStatus("active")
	require.NoError(t, err)
	require.EqualValues(t, "active", s)

	_, err = ValidateStatus("sold")
	require.Equal(t, InvalidStatus, CodeOf(err))
}
