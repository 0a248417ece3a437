package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

// SearchIndex removes documents of deleted products
type SearchIndex interface {
	DeleteProduct(id string) error
}

// FileRemover deletes stored image files
type FileRemover interface {
	Delete(ctx context.Context, key string) error
}

// Service handles physical deletion of long-archived products and expired auth data
type Service struct {
	db     *gorm.DB
	search SearchIndex
	files  FileRemover
	now    func() time.Time
}

// NewService creates a new cleanup service. search and files may be nil.
func NewService(db *gorm.DB, search SearchIndex, files FileRemover) *Service {
	return &Service{db: db, search: search, files: files, now: time.Now}
}

// CleanupConfig holds configuration for cleanup operations
type CleanupConfig struct {
	RetentionDays    int           // Days an archived product is kept before physical deletion
	MaxDeletionCount int           // Safety limit per run
	DryRun           bool          // Only log what would be deleted
	DeleteFromSearch bool          // Also delete from Meilisearch
	CodeTTL          time.Duration // Age after which signup and reset codes are purged
}

// DefaultCleanupConfig returns default configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetentionDays:    90,
		MaxDeletionCount: 10000,
		DryRun:           false,
		DeleteFromSearch: true,
		CodeTTL:          24 * time.Hour,
	}
}

// CleanupResult holds the result of a cleanup operation
type CleanupResult struct {
	TargetCount     int       `json:"target_count"`
	DeletedCount    int       `json:"deleted_count"`
	ErrorCount      int       `json:"error_count"`
	DryRun          bool      `json:"dry_run"`
	ExecutedAt      time.Time `json:"executed_at"`
	DeletedProducts []string  `json:"deleted_products"`
	Errors          []string  `json:"errors,omitempty"`
}

// FindExpiredProducts finds archived products whose status changed before the retention cutoff
func (s *Service) FindExpiredProducts(ctx context.Context, retentionDays int) ([]models.Product, error) {
	var products []models.Product

	cutoff := s.now().AddDate(0, 0, -retentionDays)

	err := s.db.WithContext(ctx).
		Preload("Images").
		Where("status = ? AND status_updated_at < ?", models.ProductStatusArchived, cutoff).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired products: %w", err)
	}

	log.Printf("[Cleanup] Found %d products archived before %s", len(products), cutoff.Format(models.DateLayout))
	return products, nil
}

// PhysicallyDelete removes expired products, writing a delete log entry for each
func (s *Service) PhysicallyDelete(ctx context.Context, config CleanupConfig) (*CleanupResult, error) {
	result := &CleanupResult{
		DryRun:     config.DryRun,
		ExecutedAt: s.now(),
	}

	expired, err := s.FindExpiredProducts(ctx, config.RetentionDays)
	if err != nil {
		return nil, err
	}

	result.TargetCount = len(expired)
	if result.TargetCount == 0 {
		return result, nil
	}

	if result.TargetCount > config.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d products exceed max deletion limit of %d",
			result.TargetCount, config.MaxDeletionCount)
	}

	log.Printf("[Cleanup] Starting: %d products to delete (retention: %d days, dry-run: %v)",
		result.TargetCount, config.RetentionDays, config.DryRun)

	for i := range expired {
		p := &expired[i]

		if config.DryRun {
			log.Printf("[Cleanup] [DRY-RUN] Would delete product %s (Title: %s)", p.ID, p.Title)
			result.DeletedProducts = append(result.DeletedProducts, p.ID)
			result.DeletedCount++
			continue
		}

		if err := s.deleteProduct(ctx, p); err != nil {
			errMsg := fmt.Sprintf("Failed to delete product %s: %v", p.ID, err)
			log.Printf("[Cleanup] ERROR: %s", errMsg)
			result.Errors = append(result.Errors, errMsg)
			result.ErrorCount++
			continue
		}

		s.removeArtifacts(ctx, p, config.DeleteFromSearch)

		log.Printf("[Cleanup] Physically deleted product %s (Title: %s)", p.ID, p.Title)
		result.DeletedProducts = append(result.DeletedProducts, p.ID)
		result.DeletedCount++
	}

	log.Printf("[Cleanup] Completed: %d/%d deleted, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.ErrorCount, config.DryRun)

	return result, nil
}

func (s *Service) deleteProduct(ctx context.Context, p *models.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.DeleteLog{
			ProductID:  p.ID,
			OwnerID:    p.OwnerID,
			Title:      p.Title,
			ArchivedAt: p.StatusUpdatedAt,
			Reason:     models.DeleteReasonRetention,
		}).Error; err != nil {
			return fmt.Errorf("delete log: %w", err)
		}

		children := []interface{}{
			&models.ProductImage{},
			&models.PricingTier{},
			&models.UnavailablePeriod{},
		}
		for _, child := range children {
			if err := tx.Where("product_id = ?", p.ID).Delete(child).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", p.ID).Delete(&models.Product{}).Error
	})
}

// removeArtifacts deletes image files and the search document after the rows are gone
func (s *Service) removeArtifacts(ctx context.Context, p *models.Product, fromSearch bool) {
	if s.files != nil {
		for _, img := range p.Images {
			if err := s.files.Delete(ctx, img.StorageKey); err != nil {
				log.Printf("[Cleanup] Failed to delete image file %s: %v", img.StorageKey, err)
			}
		}
	}
	if fromSearch && s.search != nil {
		if err := s.search.DeleteProduct(p.ID); err != nil {
			log.Printf("[Cleanup] Failed to delete product %s from search: %v", p.ID, err)
		}
	}
}

// PurgeResult counts rows removed by PurgeExpired
type PurgeResult struct {
	SignupCodes        int64 `json:"signup_codes"`
	PasswordResetCodes int64 `json:"password_reset_codes"`
	BlacklistedTokens  int64 `json:"blacklisted_tokens"`
	PastPeriods        int64 `json:"past_unavailable_periods"`
}

// PurgeExpired deletes stale one-time codes, blacklist entries of expired tokens
// and unavailable periods that ended before today
func (s *Service) PurgeExpired(ctx context.Context, codeTTL time.Duration) (*PurgeResult, error) {
	now := s.now()
	cutoff := now.Add(-codeTTL)
	today := models.DateOf(now).Format(models.DateLayout)
	result := &PurgeResult{}

	steps := []struct {
		model interface{}
		query string
		arg   interface{}
		count *int64
	}{
		{&models.SignupCode{}, "created_at < ?", cutoff, &result.SignupCodes},
		{&models.PasswordResetCode{}, "created_at < ?", cutoff, &result.PasswordResetCodes},
		{&models.BlacklistedToken{}, "expires_at < ?", now, &result.BlacklistedTokens},
	}
	for _, step := range steps {
		res := s.db.WithContext(ctx).Where(step.query, step.arg).Delete(step.model)
		if res.Error != nil {
			return nil, res.Error
		}
		*step.count = res.RowsAffected
	}

	res := s.db.WithContext(ctx).
		Where("(is_range = ? AND single_date < ?) OR (is_range = ? AND range_end < ?)", false, today, true, today).
		Delete(&models.UnavailablePeriod{})
	if res.Error != nil {
		return nil, res.Error
	}
	result.PastPeriods = res.RowsAffected

	log.Printf("[Cleanup] Purged %d signup codes, %d reset codes, %d blacklisted tokens, %d past periods",
		result.SignupCodes, result.PasswordResetCodes, result.BlacklistedTokens, result.PastPeriods)
	return result, nil
}

// GetDeleteStats returns statistics about deleted products
func (s *Service) GetDeleteStats(ctx context.Context, retentionDays int) (map[string]interface{}, error) {
	db := s.db.WithContext(ctx)
	stats := make(map[string]interface{})

	var totalDeleted int64
	if err := db.Model(&models.DeleteLog{}).Count(&totalDeleted).Error; err != nil {
		return nil, err
	}
	stats["total_deleted"] = totalDeleted

	var reasonCounts []struct {
		Reason string
		Count  int64
	}
	if err := db.Model(&models.DeleteLog{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}
	reasonMap := make(map[string]int64)
	for _, rc := range reasonCounts {
		reasonMap[rc.Reason] = rc.Count
	}
	stats["by_reason"] = reasonMap

	var recentDeleted int64
	if err := db.Model(&models.DeleteLog{}).
		Where("deleted_at >= ?", s.now().AddDate(0, 0, -30)).
		Count(&recentDeleted).Error; err != nil {
		return nil, err
	}
	stats["deleted_last_30_days"] = recentDeleted

	var archived int64
	if err := db.Model(&models.Product{}).
		Where("status = ?", models.ProductStatusArchived).
		Count(&archived).Error; err != nil {
		return nil, err
	}
	stats["currently_archived"] = archived

	expired, err := s.FindExpiredProducts(ctx, retentionDays)
	if err != nil {
		return nil, err
	}
	stats["expired_ready_for_deletion"] = len(expired)

	return stats, nil
}

// GetRecentDeleteLogs returns recent delete log entries
func (s *Service) GetRecentDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := s.db.WithContext(ctx).Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
