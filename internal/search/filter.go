package search

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FilterParams are the product search options exposed over HTTP
type FilterParams struct {
	Query        string
	Status       string
	Categories   []string
	ProductTypes []string
	Location     string
	MinPrice     *int64
	MaxPrice     *int64
	MinRating    *float64
	SortBy       string
	Limit        int64
	Offset       int64
}

// sortOptions maps public sort keys onto index sort expressions
var sortOptions = map[string]string{
	"newest":     "created_at:desc",
	"oldest":     "created_at:asc",
	"price_asc":  "min_daily_price:asc",
	"price_desc": "min_daily_price:desc",
	"rating":     "average_rating:desc",
	"popular":    "views_count:desc",
}

// BuildFilters turns params into index filter expressions joined with AND
func BuildFilters(params FilterParams) []string {
	var filters []string

	if params.Status != "" {
		filters = append(filters, fmt.Sprintf("status = %s", quote(params.Status)))
	}
	if group := anyOf("category", params.Categories); group != "" {
		filters = append(filters, group)
	}
	if group := anyOf("product_type", params.ProductTypes); group != "" {
		filters = append(filters, group)
	}
	if params.Location != "" {
		filters = append(filters, fmt.Sprintf("location = %s", quote(params.Location)))
	}

	// Price range on the day tier
	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("min_daily_price >= %d", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("min_daily_price <= %d", *params.MaxPrice))
	}

	if params.MinRating != nil {
		filters = append(filters, fmt.Sprintf("average_rating >= %.2f", *params.MinRating))
	}
	return filters
}

// SortExpression resolves a public sort key, or nil for relevance order
func SortExpression(sortBy string) []string {
	if expr, ok := sortOptions[sortBy]; ok {
		return []string{expr}
	}
	return nil
}

// FilterSearch performs a product search with the given filters
func (s *SearchClient) FilterSearch(params FilterParams) (*SearchResult, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}
	return s.AdvancedSearch(SearchRequest{
		Query:  params.Query,
		Limit:  params.Limit,
		Offset: params.Offset,
		Filter: BuildFilters(params),
		Sort:   SortExpression(params.SortBy),
	})
}

// PlainText strips markup from a listing description
func PlainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func anyOf(field string, values []string) string {
	var parts []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, fmt.Sprintf("%s = %s", field, quote(v)))
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

// quote wraps v in double quotes for the filter grammar
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
