package handlers

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/NiruddeshJatra/Bhara/internal/cleanup"
	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/scheduler"
	"github.com/NiruddeshJatra/Bhara/internal/snapshot"
)

const adminTokenHeader = "X-Admin-Token"

// AdminHandler handles admin-related requests
type AdminHandler struct {
	db              *gorm.DB
	scheduler       *scheduler.Scheduler
	emailWorker     *scheduler.EmailWorker
	snapshotService *snapshot.Service
	cleanupService  *cleanup.Service
	cleanupDefaults cleanup.CleanupConfig
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *gorm.DB, sched *scheduler.Scheduler, worker *scheduler.EmailWorker,
	snap *snapshot.Service, clean *cleanup.Service, defaults cleanup.CleanupConfig) *AdminHandler {
	return &AdminHandler{
		db:              db,
		scheduler:       sched,
		emailWorker:     worker,
		snapshotService: snap,
		cleanupService:  clean,
		cleanupDefaults: defaults,
	}
}

// RequireAdminToken guards admin routes with a shared token. An empty token disables them.
func RequireAdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Admin API is disabled"})
			return
		}
		got := c.GetHeader(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin token"})
			return
		}
		c.Next()
	}
}

// Register mounts the admin routes under rg
func (h *AdminHandler) Register(rg *gin.RouterGroup, token string) {
	admin := rg.Group("/admin", RequireAdminToken(token))
	{
		admin.GET("/stats", h.GetStats)
		admin.POST("/jobs/daily", h.TriggerDailyJob)
		admin.POST("/cleanup", h.RunCleanup)
		admin.GET("/delete-logs", h.GetDeleteLogs)
		admin.GET("/products/:id/history", h.GetProductHistory)
		admin.GET("/changes", h.GetRecentChanges)
		admin.GET("/email-queue", h.GetEmailQueueStats)
		admin.GET("/category-stats", h.GetCategoryStats)
		admin.GET("/price-distribution", h.GetPriceDistribution)
	}
}

// GetStats returns system statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.db.WithContext(ctx)
	stats := make(map[string]interface{})

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := db.Model(&models.Product{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error; err != nil {
		log.Printf("[Admin] Failed to count products: %v", err)
	}
	byStatus := make(map[string]int64, len(counts))
	var total int64
	for _, sc := range counts {
		byStatus[sc.Status] = sc.Count
		total += sc.Count
	}
	byStatus["total"] = total
	stats["products"] = byStatus

	var users, verified int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.User{}).Where("is_verified = ?", true).Count(&verified)
	stats["users"] = map[string]interface{}{
		"total":    users,
		"verified": verified,
	}

	var snapshotCount int64
	db.Model(&models.ProductSnapshot{}).Count(&snapshotCount)
	stats["snapshots"] = map[string]interface{}{
		"total": snapshotCount,
	}

	last7days := time.Now().AddDate(0, 0, -7)
	var recentChanges int64
	db.Model(&models.ProductChange{}).Where("detected_at >= ?", last7days).Count(&recentChanges)
	stats["changes"] = map[string]interface{}{
		"last_7_days": recentChanges,
	}

	deleteStats, err := h.cleanupService.GetDeleteStats(ctx, h.cleanupDefaults.RetentionDays)
	if err != nil {
		log.Printf("[Admin] Failed to get delete stats: %v", err)
	} else {
		stats["deletions"] = deleteStats
	}

	c.JSON(http.StatusOK, stats)
}

// TriggerDailyJob runs the snapshot and cleanup job in the background
func (h *AdminHandler) TriggerDailyJob(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Scheduler not available (MySQL/GORM required)",
		})
		return
	}

	log.Println("[Admin] Manual daily job trigger requested")

	go func() {
		// Detached from the request so it outlives the response
		if err := h.scheduler.RunNow(context.Background()); err != nil {
			log.Printf("[Admin] Manual daily job failed: %v", err)
		} else {
			log.Println("[Admin] Manual daily job completed successfully")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Daily job started",
		"status":  "running",
	})
}

// RunCleanup executes physical deletion of long-archived products. Dry-run unless the body says otherwise.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int   `json:"max_deletion_count"`
		DryRun           *bool `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	config := h.cleanupDefaults
	if req.RetentionDays > 0 {
		config.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		config.MaxDeletionCount = req.MaxDeletionCount
	}
	config.DryRun = req.DryRun == nil || *req.DryRun

	log.Printf("[Admin] Running cleanup (retention: %d days, max: %d, dry-run: %v)",
		config.RetentionDays, config.MaxDeletionCount, config.DryRun)

	result, err := h.cleanupService.PhysicallyDelete(c.Request.Context(), config)
	if err != nil {
		log.Printf("[Admin] Cleanup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[Admin] Cleanup completed: %d/%d deleted (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.DryRun)

	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	logs, err := h.cleanupService.GetRecentDeleteLogs(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetProductHistory returns snapshot history for a product
func (h *AdminHandler) GetProductHistory(c *gin.Context) {
	productID := c.Param("id")

	snapshots, err := h.snapshotService.GetProductHistory(c.Request.Context(), productID, queryInt(c, "limit", 30))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"snapshots":  snapshots,
		"count":      len(snapshots),
	})
}

// GetRecentChanges returns recent product changes
func (h *AdminHandler) GetRecentChanges(c *gin.Context) {
	changes, err := h.snapshotService.GetRecentChanges(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"count":   len(changes),
	})
}

// GetEmailQueueStats returns outbox counts by status
func (h *AdminHandler) GetEmailQueueStats(c *gin.Context) {
	if h.emailWorker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Email worker not running"})
		return
	}
	c.JSON(http.StatusOK, h.emailWorker.GetQueueStats())
}

// GetCategoryStats returns active listing counts and ratings per category
func (h *AdminHandler) GetCategoryStats(c *gin.Context) {
	type CategoryStat struct {
		Category      string   `json:"category"`
		Count         int64    `json:"count"`
		AverageRating *float64 `json:"average_rating"`
		TotalRentals  int64    `json:"total_rentals"`
	}

	var stats []CategoryStat
	err := h.db.WithContext(c.Request.Context()).Model(&models.Product{}).
		Select("category, count(*) as count, avg(average_rating) as average_rating, sum(rental_count) as total_rentals").
		Where("status = ?", models.ProductStatusActive).
		Group("category").
		Order("count DESC").
		Limit(50).
		Scan(&stats).Error

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category_stats": stats,
		"count":          len(stats),
	})
}

// PriceRange is one bucket of the daily price distribution
type PriceRange struct {
	RangeLabel string `json:"range_label"`
	MinPrice   int64  `json:"min_price"`
	MaxPrice   int64  `json:"max_price"`
	Count      int64  `json:"count"`
}

// priceRanges buckets daily prices in taka
func priceRanges() []PriceRange {
	return []PriceRange{
		{RangeLabel: "< ৳100", MinPrice: 0, MaxPrice: 100},
		{RangeLabel: "৳100-300", MinPrice: 100, MaxPrice: 300},
		{RangeLabel: "৳300-500", MinPrice: 300, MaxPrice: 500},
		{RangeLabel: "৳500-1000", MinPrice: 500, MaxPrice: 1000},
		{RangeLabel: "৳1000-2000", MinPrice: 1000, MaxPrice: 2000},
		{RangeLabel: "৳2000+", MinPrice: 2000, MaxPrice: 1 << 40},
	}
}

// GetPriceDistribution returns the daily price distribution of active listings
func (h *AdminHandler) GetPriceDistribution(c *gin.Context) {
	ranges := priceRanges()
	db := h.db.WithContext(c.Request.Context())

	for i := range ranges {
		var count int64
		err := db.Model(&models.PricingTier{}).
			Joins("JOIN products ON products.id = pricing_tiers.product_id").
			Where("products.status = ? AND pricing_tiers.duration_unit = ?", models.ProductStatusActive, models.DurationDay).
			Where("pricing_tiers.base_price >= ? AND pricing_tiers.base_price < ?", ranges[i].MinPrice, ranges[i].MaxPrice).
			Count(&count).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ranges[i].Count = count
	}

	c.JSON(http.StatusOK, gin.H{
		"price_distribution": ranges,
	})
}
