package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

func TestBuildFilters(t *testing.T) {
	minPrice, maxPrice := int64(100), int64(500)
	rating := 4.0

	tests := []struct {
		name   string
		params FilterParams
		want   []string
	}{
		{
			name:   "empty",
			params: FilterParams{Query: "camera"},
			want:   nil,
		},
		{
			name:   "single category",
			params: FilterParams{Status: "active", Categories: []string{"electronics"}},
			want:   []string{`status = "active"`, `category = "electronics"`},
		},
		{
			name:   "category group",
			params: FilterParams{Categories: []string{"electronics", " ", "sports"}},
			want:   []string{`(category = "electronics" OR category = "sports")`},
		},
		{
			name: "price and rating",
			params: FilterParams{
				MinPrice:  &minPrice,
				MaxPrice:  &maxPrice,
				MinRating: &rating,
			},
			want: []string{"min_daily_price >= 100", "min_daily_price <= 500", "average_rating >= 4.00"},
		},
		{
			name:   "quotes are escaped",
			params: FilterParams{Location: `Dhaka "North"`},
			want:   []string{`location = "Dhaka \"North\""`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, BuildFilters(tt.params))
		})
	}
}

func TestSortExpression(t *testing.T) {
	require.Equal(t, []string{"min_daily_price:asc"}, SortExpression("price_asc"))
	require.Equal(t, []string{"views_count:desc"}, SortExpression("popular"))
	require.Nil(t, SortExpression(""))
	require.Nil(t, SortExpression("rent; DROP"))
}

func TestPlainText(t *testing.T) {
	require.Equal(t, "plain words", PlainText("  plain words "))
	require.Equal(t, "Canon EOS with 2 lenses",
		PlainText("<p>Canon <b>EOS</b></p>\n<p>with 2 lenses</p><script>alert(1)</script>"))
	require.Equal(t, "Tom & Jerry", PlainText("Tom &amp; Jerry"))
}

func TestNewDocument(t *testing.T) {
	rating := 4.5
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &models.Product{
		ID:            "p-1",
		OwnerID:       "u-1",
		Title:         "Tent",
		Description:   "<p>Four <i>person</i> tent</p>",
		Category:      "outdoor",
		Status:        models.ProductStatusActive,
		AverageRating: &rating,
		CreatedAt:     created,
		Images:        []models.ProductImage{{ImageURL: "/media/products/a.jpg"}, {ImageURL: "/media/products/b.jpg"}},
		PricingTiers: []models.PricingTier{
			{DurationUnit: models.DurationWeek, BasePrice: 2000},
			{DurationUnit: models.DurationDay, BasePrice: 350},
		},
	}

	doc := NewDocument(p)
	require.Equal(t, "Four person tent", doc.Description)
	require.Equal(t, "active", doc.Status)
	require.NotNil(t, doc.MinDailyPrice)
	require.Equal(t, int64(350), *doc.MinDailyPrice)
	require.Equal(t, "/media/products/a.jpg", doc.ImageURL)
	require.Equal(t, created.Unix(), doc.CreatedAt)
}

func TestDocumentFromHit(t *testing.T) {
	doc := documentFromHit(map[string]interface{}{
		"id":              "p-2",
		"title":           "Drill",
		"min_daily_price": float64(120),
		"average_rating":  3.25,
		"views_count":     float64(9),
	})
	require.Equal(t, "p-2", doc.ID)
	require.Equal(t, int64(120), *doc.MinDailyPrice)
	require.Equal(t, 3.25, *doc.AverageRating)
	require.Equal(t, int64(9), doc.ViewsCount)
	require.Nil(t, doc.SecurityDeposit)
}
