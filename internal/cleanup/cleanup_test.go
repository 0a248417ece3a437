package cleanup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NiruddeshJatra/Bhara/internal/database"
	"github.com/NiruddeshJatra/Bhara/internal/models"
)

var now = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

type fakeFiles struct{ deleted []string }

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeIndex struct{ deleted []string }

func (f *fakeIndex) DeleteProduct(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *fakeFiles, *fakeIndex) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	files, index := &fakeFiles{}, &fakeIndex{}
	svc := NewService(db, index, files)
	svc.now = func() time.Time { return now }
	return svc, mock, files, index
}

// expectArchived answers the expired-product lookup with one image per product
func expectArchived(mock sqlmock.Sqlmock, ids ...string) {
	archivedAt := now.AddDate(0, 0, -120)
	products := sqlmock.NewRows([]string{"id", "owner_id", "title", "status", "status_updated_at"})
	images := sqlmock.NewRows([]string{"id", "product_id", "storage_key", "image_url"})
	for _, id := range ids {
		products.AddRow(id, "owner-1", "Tent "+id, "archived", archivedAt)
		images.AddRow("img-"+id, id, "product_images/"+id+".jpg", "/media/product_images/"+id+".jpg")
	}
	mock.ExpectQuery("SELECT \\* FROM .products. WHERE .*status = \\? AND status_updated_at < \\?").
		WithArgs("archived", sqlmock.AnyArg()).
		WillReturnRows(products)
	mock.ExpectQuery("SELECT \\* FROM .product_images.").WillReturnRows(images)
}

func config(dryRun bool, max int) CleanupConfig {
	cfg := DefaultCleanupConfig()
	cfg.DryRun = dryRun
	cfg.MaxDeletionCount = max
	return cfg
}

func TestPhysicallyDeleteDryRunDeletesNothing(t *testing.T) {
	svc, mock, files, index := newMockService(t)
	expectArchived(mock, "p1", "p2")

	result, err := svc.PhysicallyDelete(context.Background(), config(true, 10))
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.Equal(t, 2, result.TargetCount)
	require.Equal(t, []string{"p1", "p2"}, result.DeletedProducts)
	require.Empty(t, files.deleted)
	require.Empty(t, index.deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPhysicallyDeleteStopsAboveSafetyLimit(t *testing.T) {
	svc, mock, files, _ := newMockService(t)
	expectArchived(mock, "p1", "p2", "p3")

	result, err := svc.PhysicallyDelete(context.Background(), config(false, 2))
	require.Error(t, err)
	require.Contains(t, err.Error(), "safety check failed")
	require.Nil(t, result)
	require.Empty(t, files.deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPhysicallyDeleteWritesLogAndRemovesChildren(t *testing.T) {
	svc, mock, files, index := newMockService(t)
	expectArchived(mock, "p1", "p2")

	for _, id := range []string{"p1", "p2"} {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO .delete_logs.").
			WithArgs(id, "owner-1", "Tent "+id, sqlmock.AnyArg(), sqlmock.AnyArg(), models.DeleteReasonRetention).
			WillReturnResult(sqlmock.NewResult(1, 1))
		for _, table := range []string{"product_images", "pricing_tiers", "unavailable_periods"} {
			mock.ExpectExec("DELETE FROM ." + table + ". WHERE product_id = \\?").
				WithArgs(id).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectExec("DELETE FROM .products. WHERE id = \\?").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	result, err := svc.PhysicallyDelete(context.Background(), config(false, 10))
	require.NoError(t, err)
	require.Equal(t, 2, result.DeletedCount)
	require.Zero(t, result.ErrorCount)
	require.Equal(t, []string{"product_images/p1.jpg", "product_images/p2.jpg"}, files.deleted)
	require.Equal(t, []string{"p1", "p2"}, index.deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpiredKeepsPeriodsEndingToday(t *testing.T) {
	svc, mock, _, _ := newMockService(t)

	mock.ExpectExec("DELETE FROM .signup_codes. WHERE created_at < \\?").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM .password_reset_codes. WHERE created_at < \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM .token_blacklist. WHERE expires_at < \\?").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Strict comparisons against today leave today's dates in place
	mock.ExpectExec("DELETE FROM .unavailable_periods. WHERE .*is_range = \\? AND single_date < \\?.*is_range = \\? AND range_end < \\?").
		WithArgs(false, "2025-03-10", true, "2025-03-10").
		WillReturnResult(sqlmock.NewResult(0, 3))

	result, err := svc.PurgeExpired(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, &PurgeResult{
		SignupCodes:        2,
		PasswordResetCodes: 1,
		BlacklistedTokens:  0,
		PastPeriods:        3,
	}, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupAgainstMySQL(t *testing.T) {
	dsn := os.Getenv("BHARA_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("BHARA_TEST_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.NewGormDBFromDB(db).InitSchema())

	ctx := context.Background()
	svc := NewService(db, nil, nil)
	today := models.DateOf(time.Now())
	yesterday := today.AddDate(0, 0, -1)
	archivedAt := time.Now().UTC().AddDate(0, 0, -200)

	archived := &models.Product{
		OwnerID: uuid.NewString(), Title: "Old bicycle", Category: "vehicles", ProductType: "bicycle",
		Status: models.ProductStatusArchived, StatusUpdatedAt: &archivedAt,
		Images:       []models.ProductImage{{StorageKey: "k", ImageURL: "/media/k", ContentType: "image/png", Size: 1}},
		PricingTiers: []models.PricingTier{{DurationUnit: models.DurationDay, BasePrice: 100}},
	}
	require.NoError(t, db.Create(archived).Error)

	result, err := svc.PhysicallyDelete(ctx, config(false, 100000))
	require.NoError(t, err)
	require.Contains(t, result.DeletedProducts, archived.ID)

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", archived.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.PricingTier{}).Where("product_id = ?", archived.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.DeleteLog{}).Where("product_id = ?", archived.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	active := &models.Product{
		OwnerID: uuid.NewString(), Title: "Tent", Category: "outdoor", ProductType: "tent",
		Status: models.ProductStatusActive,
		UnavailablePeriods: []models.UnavailablePeriod{
			{IsRange: true, RangeStart: &yesterday, RangeEnd: &today},
			{IsRange: true, RangeStart: &yesterday, RangeEnd: &yesterday},
			{SingleDate: &yesterday},
			{SingleDate: &today},
		},
	}
	require.NoError(t, db.Create(active).Error)

	_, err = svc.PurgeExpired(ctx, 24*time.Hour)
	require.NoError(t, err)

	var left []models.UnavailablePeriod
	require.NoError(t, db.Where("product_id = ?", active.ID).Find(&left).Error)
	require.Len(t, left, 2)
	for _, p := range left {
		last := p.SingleDate
		if p.IsRange {
			last = p.RangeEnd
		}
		require.Equal(t, today, models.DateOf(*last))
	}
}
