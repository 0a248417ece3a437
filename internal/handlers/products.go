package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/product"
	"github.com/NiruddeshJatra/Bhara/internal/search"
	"github.com/NiruddeshJatra/Bhara/internal/validation"
)

// maxCalendarDays bounds the calendar window of one request
const maxCalendarDays = 366

// ProductSearcher runs full-text product searches
type ProductSearcher interface {
	FilterSearch(params search.FilterParams) (*search.SearchResult, error)
}

// ProductHandler serves the product endpoints
type ProductHandler struct {
	products *product.Service
	search   ProductSearcher
}

// NewProductHandler creates a product handler. searcher may be nil.
func NewProductHandler(products *product.Service, searcher ProductSearcher) *ProductHandler {
	return &ProductHandler{products: products, search: searcher}
}

// Register mounts the product routes under rg
func (h *ProductHandler) Register(rg *gin.RouterGroup, requireAuth, optionalAuth gin.HandlerFunc) {
	products := rg.Group("/products")
	{
		products.GET("", h.List)
		products.GET("/search", h.Search)
		products.GET("/:id", optionalAuth, h.Get)
		products.GET("/:id/availability", h.Availability)
		products.GET("/:id/calendar", h.Calendar)

		owner := products.Group("", requireAuth)
		owner.POST("", h.Create)
		owner.PATCH("/:id", h.Update)
		owner.DELETE("/:id", h.Delete)
		owner.POST("/:id/images", h.AddImages)
		owner.DELETE("/:id/images/:imageId", h.RemoveImage)
		owner.PUT("/:id/pricing-tiers", h.SetPricingTier)
		owner.DELETE("/:id/pricing-tiers/:unit", h.RemovePricingTier)
		owner.POST("/:id/unavailable-periods", h.AddUnavailablePeriod)
		owner.DELETE("/:id/unavailable-periods/:periodId", h.RemoveUnavailablePeriod)
		owner.POST("/:id/status", h.UpdateStatus)
		owner.POST("/:id/rentals", h.RecordRental)
	}
}

// detailsRequest accepts purchase_year as YYYY-MM-DD
type detailsRequest struct {
	validation.ProductDetails
	PurchaseYear *string `json:"purchase_year"`
}

func (r detailsRequest) toDetails() (validation.ProductDetails, error) {
	d := r.ProductDetails
	if r.PurchaseYear != nil {
		t, err := parseDate(*r.PurchaseYear)
		if err != nil {
			return d, &validation.Error{Code: validation.InvalidField, Field: "purchase_year", Message: err.Error()}
		}
		d.PurchaseYear = &t
	}
	return d, nil
}

type periodRequest struct {
	IsRange    bool    `json:"is_range"`
	SingleDate *string `json:"single_date"`
	RangeStart *string `json:"range_start"`
	RangeEnd   *string `json:"range_end"`
}

func (r periodRequest) toInput() (validation.UnavailablePeriodInput, error) {
	in := validation.UnavailablePeriodInput{IsRange: r.IsRange}
	dates := []struct {
		field string
		raw   *string
		dst   **time.Time
	}{
		{"single_date", r.SingleDate, &in.SingleDate},
		{"range_start", r.RangeStart, &in.RangeStart},
		{"range_end", r.RangeEnd, &in.RangeEnd},
	}
	for _, d := range dates {
		if d.raw == nil {
			continue
		}
		t, err := parseDate(*d.raw)
		if err != nil {
			return in, &validation.Error{Code: validation.InvalidField, Field: d.field, Message: err.Error()}
		}
		*d.dst = &t
	}
	return in, nil
}

type createRequest struct {
	detailsRequest
	PricingTiers       []validation.PricingTierInput `json:"pricing_tiers"`
	UnavailablePeriods []periodRequest               `json:"unavailable_periods"`
}

// List returns a page of products, newest first
func (h *ProductHandler) List(c *gin.Context) {
	filter := product.ListFilter{
		Status:      models.ProductStatus(c.Query("status")),
		Category:    c.Query("category"),
		ProductType: c.Query("product_type"),
		OwnerID:     c.Query("owner"),
		Limit:       queryInt(c, "limit", 20),
		Offset:      queryInt(c, "offset", 0),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(c, "status", "Invalid status.")
		return
	}

	products, total, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
		"total":    total,
	})
}

// Search runs a full-text search over active listings
func (h *ProductHandler) Search(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search not available"})
		return
	}

	params := search.FilterParams{
		Query:        c.Query("q"),
		Status:       string(models.ProductStatusActive),
		Categories:   splitList(c.Query("category")),
		ProductTypes: splitList(c.Query("product_type")),
		Location:     c.Query("location"),
		SortBy:       c.Query("sort"),
		Limit:        int64(queryInt(c, "limit", 20)),
		Offset:       int64(queryInt(c, "offset", 0)),
	}
	if v, err := strconv.ParseInt(c.Query("min_price"), 10, 64); err == nil {
		params.MinPrice = &v
	}
	if v, err := strconv.ParseInt(c.Query("max_price"), 10, 64); err == nil {
		params.MaxPrice = &v
	}
	if v, err := strconv.ParseFloat(c.Query("min_rating"), 64); err == nil {
		params.MinRating = &v
	}

	result, err := h.search.FilterSearch(params)
	if err != nil {
		log.Printf("[HTTP] Search failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Search failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get returns one product and counts the view for non-owners
func (h *ProductHandler) Get(c *gin.Context) {
	p, err := h.products.View(c.Request.Context(), actor(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Availability reports whether the product is free on ?date=
func (h *ProductHandler) Availability(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		badRequest(c, "date", err.Error())
		return
	}
	ok, err := h.products.IsDateAvailable(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":      date.Format(models.DateLayout),
		"available": ok,
	})
}

// Calendar lists blocked days between ?from= and ?to=, defaulting to the next 30 days
func (h *ProductHandler) Calendar(c *gin.Context) {
	from := models.DateOf(time.Now())
	if raw := c.Query("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			badRequest(c, "from", err.Error())
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, 30)
	if raw := c.Query("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			badRequest(c, "to", err.Error())
			return
		}
		to = t
	}
	if to.Before(from) {
		badRequest(c, "to", "End date must not be before start date.")
		return
	}
	if to.Sub(from) > maxCalendarDays*24*time.Hour {
		badRequest(c, "to", "Calendar window cannot exceed one year.")
		return
	}

	blocked, err := h.products.Calendar(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	dates := make([]string, 0, len(blocked))
	for _, d := range blocked {
		dates = append(dates, d.Format(models.DateLayout))
	}
	c.JSON(http.StatusOK, gin.H{
		"from":              from.Format(models.DateLayout),
		"to":                to.Format(models.DateLayout),
		"unavailable_dates": dates,
	})
}

// Create accepts either multipart (a "data" JSON field plus "images" files) or plain JSON
func (h *ProductHandler) Create(c *gin.Context) {
	var req createRequest
	var uploads []validation.ImageUpload

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := json.Unmarshal([]byte(c.PostForm("data")), &req); err != nil {
			badRequest(c, "data", "Invalid product data.")
			return
		}
		var err error
		uploads, err = readUploads(c, "images", validation.MaxImageSize)
		if err != nil {
			badRequest(c, "images", "Invalid image upload.")
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	details, err := req.toDetails()
	if err != nil {
		writeError(c, err)
		return
	}
	in := product.CreateInput{
		Details:      details,
		Images:       uploads,
		PricingTiers: req.PricingTiers,
	}
	for _, pr := range req.UnavailablePeriods {
		period, err := pr.toInput()
		if err != nil {
			writeError(c, err)
			return
		}
		in.UnavailablePeriods = append(in.UnavailablePeriods, period)
	}

	p, err := h.products.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Update applies a partial edit of listing details
func (h *ProductHandler) Update(c *gin.Context) {
	var req detailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	details, err := req.toDetails()
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := h.products.UpdateDetails(c.Request.Context(), actor(c), c.Param("id"), details)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) Delete(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProductHandler) AddImages(c *gin.Context) {
	uploads, err := readUploads(c, "images", validation.MaxImageSize)
	if err != nil {
		badRequest(c, "images", "Invalid image upload.")
		return
	}
	images, err := h.products.AddImages(c.Request.Context(), actor(c), c.Param("id"), uploads)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"images": images})
}

func (h *ProductHandler) RemoveImage(c *gin.Context) {
	err := h.products.RemoveImage(c.Request.Context(), actor(c), c.Param("id"), c.Param("imageId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProductHandler) SetPricingTier(c *gin.Context) {
	var req validation.PricingTierInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tier, err := h.products.SetPricingTier(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tier)
}

func (h *ProductHandler) RemovePricingTier(c *gin.Context) {
	unit := models.DurationUnit(c.Param("unit"))
	if !unit.Valid() {
		badRequest(c, "duration_unit", "Duration unit must be one of: day, week, month")
		return
	}
	if err := h.products.RemovePricingTier(c.Request.Context(), actor(c), c.Param("id"), unit); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProductHandler) AddUnavailablePeriod(c *gin.Context) {
	var req periodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(c, err)
		return
	}
	period, err := h.products.AddUnavailablePeriod(c.Request.Context(), actor(c), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, period)
}

func (h *ProductHandler) RemoveUnavailablePeriod(c *gin.Context) {
	err := h.products.RemoveUnavailablePeriod(c.Request.Context(), actor(c), c.Param("id"), c.Param("periodId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateStatus sets the lifecycle status of a listing
func (h *ProductHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status        string  `json:"status"`
		StatusMessage *string `json:"status_message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.products.UpdateStatus(c.Request.Context(), actor(c), c.Param("id"), req.Status, req.StatusMessage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RecordRental counts a completed rental, optionally with the renter's rating
func (h *ProductHandler) RecordRental(c *gin.Context) {
	var req struct {
		Rating *float64 `json:"rating"`
	}
	// An empty body records the rental without a rating
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	p, err := h.products.RecordRental(c.Request.Context(), actor(c), c.Param("id"), req.Rating)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
