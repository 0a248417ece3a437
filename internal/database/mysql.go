package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/product"
)

type GormDB struct {
	db *gorm.DB
}

func NewGormDB(host, port, user, password, dbname string) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.User{},
		&models.SignupCode{},
		&models.PasswordResetCode{},
		&models.BlacklistedToken{},
		&models.Product{},
		&models.ProductImage{},
		&models.PricingTier{},
		&models.UnavailablePeriod{},
		&models.ProductSnapshot{},
		&models.ProductChange{},
		&models.DeleteLog{},
		&models.EmailJob{},
	)
}

func (gdb *GormDB) with(ctx context.Context) *gorm.DB {
	return gdb.db.WithContext(ctx)
}

// CreateProduct inserts a product together with its images, tiers and periods
func (gdb *GormDB) CreateProduct(ctx context.Context, p *models.Product) error {
	err := gdb.with(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return product.ErrDuplicateTier
	}
	return err
}

// GetProduct retrieves a product with its children in display order
func (gdb *GormDB) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := gdb.with(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("PricingTiers", func(db *gorm.DB) *gorm.DB {
			return db.Order("duration_unit ASC, base_price ASC")
		}).
		Preload("UnavailablePeriods", func(db *gorm.DB) *gorm.DB {
			return db.Order("range_start DESC, single_date DESC")
		}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, product.ErrNotFound)
	}
	return &p, nil
}

// ListProducts retrieves a filtered page of products, newest first
func (gdb *GormDB) ListProducts(ctx context.Context, f product.ListFilter) ([]models.Product, int64, error) {
	query := gdb.with(ctx).Model(&models.Product{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.ProductType != "" {
		query = query.Where("product_type = ?", f.ProductType)
	}
	if f.OwnerID != "" {
		query = query.Where("owner_id = ?", f.OwnerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := query.
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("PricingTiers").
		Order("created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UpdateProductFields updates the given columns of one product
func (gdb *GormDB) UpdateProductFields(ctx context.Context, id string, fields map[string]interface{}) error {
	result := gdb.with(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DeleteProduct removes a product and its children, and records a delete log entry
func (gdb *GormDB) DeleteProduct(ctx context.Context, id string) error {
	return gdb.with(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			return notFound(err, product.ErrNotFound)
		}
		if err := deleteProductRows(tx, []string{id}); err != nil {
			return err
		}
		return tx.Create(&models.DeleteLog{
			ProductID: p.ID,
			OwnerID:   p.OwnerID,
			Title:     p.Title,
			Reason:    models.DeleteReasonOwner,
		}).Error
	})
}

// deleteProductRows removes products and every child row in one transaction
func deleteProductRows(tx *gorm.DB, ids []string) error {
	children := []interface{}{
		&models.ProductImage{},
		&models.PricingTier{},
		&models.UnavailablePeriod{},
	}
	for _, child := range children {
		if err := tx.Where("product_id IN ?", ids).Delete(child).Error; err != nil {
			return fmt.Errorf("failed to delete child rows: %w", err)
		}
	}
	return tx.Where("id IN ?", ids).Delete(&models.Product{}).Error
}

// AddImages inserts image rows
func (gdb *GormDB) AddImages(ctx context.Context, images []models.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	return gdb.with(ctx).Create(&images).Error
}

// DeleteImage removes one image of a product and returns the removed row
func (gdb *GormDB) DeleteImage(ctx context.Context, productID, imageID string) (*models.ProductImage, error) {
	var img models.ProductImage
	err := gdb.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&img, "id = ? AND product_id = ?", imageID, productID).Error; err != nil {
			return notFound(err, product.ErrNotFound)
		}
		return tx.Delete(&img).Error
	})
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// UpsertPricingTier inserts or replaces the tier keyed by (product_id, duration_unit)
func (gdb *GormDB) UpsertPricingTier(ctx context.Context, tier *models.PricingTier) error {
	err := gdb.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "duration_unit"}},
		DoUpdates: clause.AssignmentColumns([]string{"base_price", "max_period", "updated_at"}),
	}).Create(tier).Error
	if err != nil {
		return err
	}
	// On conflict the existing row keeps its id
	return gdb.with(ctx).
		First(tier, "product_id = ? AND duration_unit = ?", tier.ProductID, tier.DurationUnit).Error
}

// DeletePricingTier removes the tier of a product for unit
func (gdb *GormDB) DeletePricingTier(ctx context.Context, productID string, unit models.DurationUnit) error {
	result := gdb.with(ctx).
		Where("product_id = ? AND duration_unit = ?", productID, unit).
		Delete(&models.PricingTier{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return product.ErrNotFound
	}
	return nil
}

// AddUnavailablePeriod inserts a period
func (gdb *GormDB) AddUnavailablePeriod(ctx context.Context, period *models.UnavailablePeriod) error {
	return gdb.with(ctx).Create(period).Error
}

// DeleteUnavailablePeriod removes one period of a product
func (gdb *GormDB) DeleteUnavailablePeriod(ctx context.Context, productID, periodID string) error {
	result := gdb.with(ctx).
		Where("id = ? AND product_id = ?", periodID, productID).
		Delete(&models.UnavailablePeriod{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return product.ErrNotFound
	}
	return nil
}

// CountCoveringPeriods counts the periods of a product that block date
func (gdb *GormDB) CountCoveringPeriods(ctx context.Context, productID string, date time.Time) (int64, error) {
	day := models.DateOf(date).Format(models.DateLayout)

	var count int64
	err := gdb.with(ctx).Model(&models.UnavailablePeriod{}).
		Where("product_id = ?", productID).
		Where("(is_range = ? AND single_date = ?) OR (is_range = ? AND range_start <= ? AND range_end >= ?)",
			false, day, true, day, day).
		Count(&count).Error
	return count, err
}

// ListUnavailablePeriods retrieves every period of a product
func (gdb *GormDB) ListUnavailablePeriods(ctx context.Context, productID string) ([]models.UnavailablePeriod, error) {
	var periods []models.UnavailablePeriod
	err := gdb.with(ctx).
		Where("product_id = ?", productID).
		Order("range_start DESC, single_date DESC").
		Find(&periods).Error
	return periods, err
}

// IncrementViews adds one to views_count in a single UPDATE
func (gdb *GormDB) IncrementViews(ctx context.Context, id string) error {
	return gdb.increment(ctx, id, "views_count")
}

// IncrementRentals adds one to rental_count in a single UPDATE
func (gdb *GormDB) IncrementRentals(ctx context.Context, id string) error {
	return gdb.increment(ctx, id, "rental_count")
}

func (gdb *GormDB) increment(ctx context.Context, id, column string) error {
	result := gdb.with(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SwapAverageRating writes rating only if the row is still at version
func (gdb *GormDB) SwapAverageRating(ctx context.Context, id string, version int64, rating float64) (bool, error) {
	return gdb.swap(ctx, id, version, map[string]interface{}{
		"average_rating": rating,
	})
}

// SwapStatus writes status, message and timestamp only if the row is still at version
func (gdb *GormDB) SwapStatus(ctx context.Context, id string, version int64, status models.ProductStatus, message *string, at time.Time) (bool, error) {
	return gdb.swap(ctx, id, version, map[string]interface{}{
		"status":            status,
		"status_message":    message,
		"status_updated_at": at,
	})
}

func (gdb *GormDB) swap(ctx context.Context, id string, version int64, fields map[string]interface{}) (bool, error) {
	fields["version"] = gorm.Expr("version + 1")
	result := gdb.with(ctx).Model(&models.Product{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// InTx runs fn with a GormDB bound to one transaction
func (gdb *GormDB) InTx(ctx context.Context, fn func(product.Store) error) error {
	return gdb.with(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormDB{db: tx})
	})
}

// notFound maps gorm.ErrRecordNotFound onto the caller's sentinel
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
