package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/product"
)

// The suite below runs against live databases. Point BHARA_TEST_MYSQL_DSN
// (with parseTime=True) or BHARA_TEST_POSTGRES_DSN at a scratch database.

func openTestMySQL(t *testing.T) *GormDB {
	t.Helper()
	dsn := os.Getenv("BHARA_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("BHARA_TEST_MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	gdb := NewGormDBFromDB(db)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { gdb.Close() })
	return gdb
}

func openTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	dsn := os.Getenv("BHARA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BHARA_TEST_POSTGRES_DSN not set")
	}
	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	db := NewPostgresDBFromConn(conn)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGormDBStore(t *testing.T) {
	runStoreSuite(t, openTestMySQL(t))
}

func TestPostgresDBStore(t *testing.T) {
	runStoreSuite(t, openTestPostgres(t))
}

func calendarDay(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func sampleProduct(ownerID, category string, status models.ProductStatus) *models.Product {
	return &models.Product{
		OwnerID:       ownerID,
		Title:         "Camping tent",
		Category:      category,
		ProductType:   "tent",
		Location:      "Sylhet",
		PurchasePrice: 9000,
		Status:        status,
		Images: []models.ProductImage{{
			StorageKey:  "product_images/tent.jpg",
			ImageURL:    "/media/product_images/tent.jpg",
			ContentType: "image/jpeg",
			Size:        2048,
		}},
		PricingTiers: []models.PricingTier{{DurationUnit: models.DurationDay, BasePrice: 350}},
	}
}

func runStoreSuite(t *testing.T, store product.Store) {
	ctx := context.Background()

	t.Run("ListProducts filters", func(t *testing.T) {
		owner := uuid.NewString()
		for _, p := range []*models.Product{
			sampleProduct(owner, "outdoor", models.ProductStatusActive),
			sampleProduct(owner, "outdoor", models.ProductStatusDraft),
			sampleProduct(owner, "sports", models.ProductStatusActive),
		} {
			require.NoError(t, store.CreateProduct(ctx, p))
		}

		got, total, err := store.ListProducts(ctx, product.ListFilter{
			OwnerID: owner, Status: models.ProductStatusActive, Limit: 10,
		})
		require.NoError(t, err)
		require.Equal(t, int64(2), total)
		require.Len(t, got, 2)

		got, total, err = store.ListProducts(ctx, product.ListFilter{
			OwnerID: owner, Status: models.ProductStatusActive, Category: "outdoor", Limit: 10,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		require.Equal(t, "outdoor", got[0].Category)
		require.Len(t, got[0].PricingTiers, 1)

		got, total, err = store.ListProducts(ctx, product.ListFilter{OwnerID: owner, Limit: 1})
		require.NoError(t, err)
		require.Equal(t, int64(3), total)
		require.Len(t, got, 1)
	})

	t.Run("swap fails on a stale version", func(t *testing.T) {
		p := sampleProduct(uuid.NewString(), "outdoor", models.ProductStatusActive)
		require.NoError(t, store.CreateProduct(ctx, p))
		loaded, err := store.GetProduct(ctx, p.ID)
		require.NoError(t, err)

		ok, err := store.SwapAverageRating(ctx, p.ID, loaded.Version, 4)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.SwapStatus(ctx, p.ID, loaded.Version, models.ProductStatusRented, nil, time.Now().UTC())
		require.NoError(t, err)
		require.False(t, ok)

		after, err := store.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, loaded.Version+1, after.Version)
		require.Equal(t, models.ProductStatusActive, after.Status)
		require.InDelta(t, 4.0, *after.AverageRating, 1e-9)
	})

	t.Run("single dates and ranges block their days", func(t *testing.T) {
		p := sampleProduct(uuid.NewString(), "outdoor", models.ProductStatusActive)
		require.NoError(t, store.CreateProduct(ctx, p))
		for _, period := range []*models.UnavailablePeriod{
			{ProductID: p.ID, SingleDate: calendarDay(2030, 1, 10)},
			{ProductID: p.ID, IsRange: true, RangeStart: calendarDay(2030, 2, 1), RangeEnd: calendarDay(2030, 2, 5)},
			{ProductID: p.ID, SingleDate: calendarDay(2030, 2, 3)},
		} {
			require.NoError(t, store.AddUnavailablePeriod(ctx, period))
		}

		cases := []struct {
			day  *time.Time
			want int64
		}{
			{calendarDay(2030, 1, 10), 1},
			{calendarDay(2030, 1, 11), 0},
			{calendarDay(2030, 2, 1), 1},
			{calendarDay(2030, 2, 3), 2},
			{calendarDay(2030, 2, 5), 1},
			{calendarDay(2030, 2, 6), 0},
		}
		for _, tc := range cases {
			n, err := store.CountCoveringPeriods(ctx, p.ID, *tc.day)
			require.NoError(t, err)
			require.Equal(t, tc.want, n, tc.day.Format(models.DateLayout))
		}
	})

	t.Run("counters and tier upsert", func(t *testing.T) {
		p := sampleProduct(uuid.NewString(), "outdoor", models.ProductStatusActive)
		require.NoError(t, store.CreateProduct(ctx, p))

		require.NoError(t, store.IncrementViews(ctx, p.ID))
		require.NoError(t, store.IncrementViews(ctx, p.ID))
		require.NoError(t, store.IncrementRentals(ctx, p.ID))

		week := &models.PricingTier{ProductID: p.ID, DurationUnit: models.DurationWeek, BasePrice: 2000}
		require.NoError(t, store.UpsertPricingTier(ctx, week))
		firstID := week.ID
		again := &models.PricingTier{ProductID: p.ID, DurationUnit: models.DurationWeek, BasePrice: 1800}
		require.NoError(t, store.UpsertPricingTier(ctx, again))
		require.Equal(t, firstID, again.ID)

		got, err := store.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), got.ViewsCount)
		require.Equal(t, int64(1), got.RentalCount)
		require.Len(t, got.PricingTiers, 2)
		for _, tier := range got.PricingTiers {
			if tier.DurationUnit == models.DurationWeek {
				require.Equal(t, int64(1800), tier.BasePrice)
			}
		}
	})

	t.Run("delete removes children", func(t *testing.T) {
		p := sampleProduct(uuid.NewString(), "outdoor", models.ProductStatusActive)
		p.UnavailablePeriods = []models.UnavailablePeriod{{SingleDate: calendarDay(2030, 5, 1)}}
		require.NoError(t, store.CreateProduct(ctx, p))

		require.NoError(t, store.DeleteProduct(ctx, p.ID))

		_, err := store.GetProduct(ctx, p.ID)
		require.ErrorIs(t, err, product.ErrNotFound)
		periods, err := store.ListUnavailablePeriods(ctx, p.ID)
		require.NoError(t, err)
		require.Empty(t, periods)
		require.ErrorIs(t, store.DeleteProduct(ctx, p.ID), product.ErrNotFound)
	})
}
