package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

const batchSize = 200

// Service handles product snapshot operations
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new snapshot service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// RunResult summarises one pass over every product
type RunResult struct {
	Snapshotted int `json:"snapshotted"`
	Changed     int `json:"changed"`
	Errors      int `json:"errors"`
}

// SnapshotAll records today's snapshot for every product
func (s *Service) SnapshotAll(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}
	var batch []models.Product

	err := s.db.WithContext(ctx).
		Preload("PricingTiers").
		Preload("Images").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				changed, err := s.CreateSnapshotWithChangeDetection(ctx, &batch[i])
				if err != nil {
					log.Printf("[Snapshot] Failed to snapshot product %s: %v", batch[i].ID, err)
					result.Errors++
					continue
				}
				result.Snapshotted++
				if changed {
					result.Changed++
				}
			}
			return nil
		}).Error
	if err != nil {
		return result, fmt.Errorf("failed to scan products: %w", err)
	}

	log.Printf("[Snapshot] Completed: %d snapshots, %d changed, %d errors",
		result.Snapshotted, result.Changed, result.Errors)
	return result, nil
}

// DetectChanges compares current product state with the most recent earlier snapshot
func (s *Service) DetectChanges(ctx context.Context, p *models.Product) ([]models.ProductChange, error) {
	var last models.ProductSnapshot
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND snapshot_at < ?", p.ID, models.DateOf(s.now())).
		Order("snapshot_at DESC").
		First(&last).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Diff(p, nil, s.now()), nil
	}
	if err != nil {
		return nil, err
	}
	return Diff(p, &last, s.now()), nil
}

// CreateSnapshotWithChangeDetection writes today's snapshot and its changes.
// It reports whether anything changed since the previous snapshot.
func (s *Service) CreateSnapshotWithChangeDetection(ctx context.Context, p *models.Product) (bool, error) {
	changes, err := s.DetectChanges(ctx, p)
	if err != nil {
		log.Printf("[Snapshot] Warning: Failed to detect changes for product %s: %v", p.ID, err)
	}

	snap := Build(p, s.now())
	snap.HasChanged = len(changes) > 0
	if snap.HasChanged {
		snap.ChangeNote = fmt.Sprintf("%d changes detected", len(changes))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ProductSnapshot
		res := tx.Where("product_id = ? AND snapshot_at = ?", p.ID, snap.SnapshotAt).First(&existing)
		switch {
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
			if err := tx.Create(snap).Error; err != nil {
				return err
			}
		case res.Error != nil:
			return res.Error
		default:
			snap.ID = existing.ID
			snap.CreatedAt = existing.CreatedAt
			if err := tx.Save(snap).Error; err != nil {
				return err
			}
			// a rerun on the same day replaces that day's changes
			if err := tx.Where("snapshot_id = ?", snap.ID).Delete(&models.ProductChange{}).Error; err != nil {
				return err
			}
		}

		if len(changes) == 0 {
			return nil
		}
		for i := range changes {
			changes[i].SnapshotID = snap.ID
		}
		return tx.Create(&changes).Error
	})
	if err != nil {
		return false, err
	}
	return snap.HasChanged, nil
}

// GetProductHistory retrieves snapshot history for a product
func (s *Service) GetProductHistory(ctx context.Context, productID string, limit int) ([]models.ProductSnapshot, error) {
	var snapshots []models.ProductSnapshot
	query := s.db.WithContext(ctx).Where("product_id = ?", productID).Order("snapshot_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// GetRecentChanges retrieves recent product changes
func (s *Service) GetRecentChanges(ctx context.Context, limit int) ([]models.ProductChange, error) {
	var changes []models.ProductChange
	query := s.db.WithContext(ctx).Order("detected_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
