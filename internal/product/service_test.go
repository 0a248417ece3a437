package product

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/validation"
)

// memStore is a map-backed Store. swapHook lets a test simulate a competing writer.
type memStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
	nextID   int
	swapHook func(id string)
}

func newMemStore() *memStore {
	return &memStore{products: make(map[string]*models.Product)}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id("prod")
	p.Status = models.ProductStatusDraft
	p.Version = 1
	for i := range p.Images {
		p.Images[i].ID = m.id("img")
		p.Images[i].ProductID = p.ID
	}
	for i := range p.PricingTiers {
		p.PricingTiers[i].ID = m.id("tier")
		p.PricingTiers[i].ProductID = p.ID
	}
	for i := range p.UnavailablePeriods {
		p.UnavailablePeriods[i].ID = m.id("period")
		p.UnavailablePeriods[i].ProductID = p.ID
	}
	cp := *p
	cp.Images = append([]models.ProductImage(nil), p.Images...)
	cp.PricingTiers = append([]models.PricingTier(nil), p.PricingTiers...)
	cp.UnavailablePeriods = append([]models.UnavailablePeriod(nil), p.UnavailablePeriods...)
	m.products[p.ID] = &cp
	return nil
}

func (m *memStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Images = append([]models.ProductImage(nil), p.Images...)
	cp.PricingTiers = append([]models.PricingTier(nil), p.PricingTiers...)
	cp.UnavailablePeriods = append([]models.UnavailablePeriod(nil), p.UnavailablePeriods...)
	return &cp, nil
}

func (m *memStore) ListProducts(ctx context.Context, f ListFilter) ([]models.Product, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.products {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.OwnerID != "" && p.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m *memStore) UpdateProductFields(ctx context.Context, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := fields["title"]; ok {
		p.Title = v.(string)
	}
	if v, ok := fields["location"]; ok {
		p.Location = v.(string)
	}
	return nil
}

func (m *memStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *memStore) AddImages(ctx context.Context, images []models.ProductImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range images {
		images[i].ID = m.id("img")
		p := m.products[images[i].ProductID]
		p.Images = append(p.Images, images[i])
	}
	return nil
}

func (m *memStore) DeleteImage(ctx context.Context, productID, imageID string) (*models.ProductImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	for i, img := range p.Images {
		if img.ID == imageID {
			p.Images = append(p.Images[:i], p.Images[i+1:]...)
			return &img, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) UpsertPricingTier(ctx context.Context, tier *models.PricingTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[tier.ProductID]
	for i := range p.PricingTiers {
		if p.PricingTiers[i].DurationUnit == tier.DurationUnit {
			tier.ID = p.PricingTiers[i].ID
			p.PricingTiers[i] = *tier
			return nil
		}
	}
	tier.ID = m.id("tier")
	p.PricingTiers = append(p.PricingTiers, *tier)
	return nil
}

func (m *memStore) DeletePricingTier(ctx context.Context, productID string, unit models.DurationUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	for i := range p.PricingTiers {
		if p.PricingTiers[i].DurationUnit == unit {
			p.PricingTiers = append(p.PricingTiers[:i], p.PricingTiers[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) AddUnavailablePeriod(ctx context.Context, period *models.UnavailablePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	period.ID = m.id("period")
	p := m.products[period.ProductID]
	p.UnavailablePeriods = append(p.UnavailablePeriods, *period)
	return nil
}

func (m *memStore) DeleteUnavailablePeriod(ctx context.Context, productID, periodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	for i := range p.UnavailablePeriods {
		if p.UnavailablePeriods[i].ID == periodID {
			p.UnavailablePeriods = append(p.UnavailablePeriods[:i], p.UnavailablePeriods[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) CountCoveringPeriods(ctx context.Context, productID string, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.products[productID].UnavailablePeriods {
		if m.products[productID].UnavailablePeriods[i].Covers(date) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListUnavailablePeriods(ctx context.Context, productID string) ([]models.UnavailablePeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.UnavailablePeriod(nil), m.products[productID].UnavailablePeriods...), nil
}

func (m *memStore) IncrementViews(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	p.ViewsCount++
	return nil
}

func (m *memStore) IncrementRentals(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	p.RentalCount++
	return nil
}

func (m *memStore) SwapAverageRating(ctx context.Context, id string, version int64, rating float64) (bool, error) {
	if m.swapHook != nil {
		m.swapHook(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	if p.Version != version {
		return false, nil
	}
	p.AverageRating = &rating
	p.Version++
	return true, nil
}

func (m *memStore) SwapStatus(ctx context.Context, id string, version int64, status models.ProductStatus, message *string, at time.Time) (bool, error) {
	if m.swapHook != nil {
		m.swapHook(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	if p.Version != version {
		return false, nil
	}
	p.Status = status
	p.StatusMessage = message
	p.StatusUpdatedAt = &at
	p.Version++
	return true, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(m)
}

func (m *memStore) bumpVersion(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].Version++
}

type memImages struct {
	saved   []string
	deleted []string
}

func (m *memImages) Save(ctx context.Context, folder, filename string, data []byte) (string, string, error) {
	key := fmt.Sprintf("%s/%d-%s", folder, len(m.saved), filename)
	m.saved = append(m.saved, key)
	return key, "/media/" + key, nil
}

func (m *memImages) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

type recordedEvent struct{ action, id string }

type memPublisher struct{ events []recordedEvent }

func (m *memPublisher) PublishProductEvent(ctx context.Context, action, productID string) error {
	m.events = append(m.events, recordedEvent{action, productID})
	return nil
}

var (
	owner    = Actor{UserID: "owner-1"}
	stranger = Actor{UserID: "someone-else"}
	fixedNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	png      = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
)

func s(v string) *string { return &v }

func n(v int64) *int64 { return &v }

func f(v float64) *float64 { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func upload(name string) validation.ImageUpload {
	return validation.ImageUpload{Filename: name, Data: png}
}

func setup(t *testing.T) (*Service, *memStore, *memImages, *memPublisher) {
	t.Helper()
	store := newMemStore()
	imgs := &memImages{}
	pub := &memPublisher{}
	svc := NewService(store, imgs, pub)
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, store, imgs, pub
}

func createProduct(t *testing.T, svc *Service) *models.Product {
	t.Helper()
	p, err := svc.Create(context.Background(), owner, CreateInput{
		Details: validation.ProductDetails{
			Title:         s("DSLR Camera"),
			Category:      s("electronics"),
			ProductType:   s("camera"),
			PurchasePrice: n(65000),
			PurchaseYear:  date(2022, 1, 1),
		},
		Images:       []validation.ImageUpload{upload("front.png"), upload("back.png")},
		PricingTiers: []validation.PricingTierInput{{DurationUnit: "day", BasePrice: n(800)}},
		UnavailablePeriods: []validation.UnavailablePeriodInput{
			{SingleDate: date(2024, 7, 1)},
		},
	})
	require.NoError(t, err)
	return p
}

func TestCreate(t *testing.T) {
	svc, _, imgs, pub := setup(t)
	p := createProduct(t, svc)

	require.Equal(t, "owner-1", p.OwnerID)
	require.Equal(t, models.ProductStatusDraft, p.Status)
	require.Len(t, p.Images, 2)
	require.Len(t, p.PricingTiers, 1)
	require.Len(t, p.UnavailablePeriods, 1)
	require.Len(t, imgs.saved, 2)
	require.Equal(t, "image/png", p.Images[0].ContentType)
	require.Equal(t, []recordedEvent{{"create", p.ID}}, pub.events)
}

func TestCreate_RejectsInvalidChildren(t *testing.T) {
	svc, _, imgs, _ := setup(t)
	ctx := context.Background()
	details := validation.ProductDetails{Title: s("Tent"), Category: s("outdoor"), ProductType: s("tent"), PurchasePrice: n(1)}

	_, err := svc.Create(ctx, owner, CreateInput{Details: details})
	require.Equal(t, validation.TooFewImages, validation.CodeOf(err))

	_, err = svc.Create(ctx, owner, CreateInput{
		Details:      details,
		Images:       []validation.ImageUpload{upload("a.png")},
		PricingTiers: []validation.PricingTierInput{{DurationUnit: "day", BasePrice: n(1)}, {DurationUnit: "day", BasePrice: n(2)}},
	})
	require.ErrorIs(t, err, ErrDuplicateTier)

	_, err = svc.Create(ctx, owner, CreateInput{
		Details:            details,
		Images:             []validation.ImageUpload{upload("a.png")},
		UnavailablePeriods: []validation.UnavailablePeriodInput{{SingleDate: date(2024, 1, 1)}},
	})
	require.Equal(t, validation.PastSingleDate, validation.CodeOf(err))
	require.Empty(t, imgs.saved)
}

func TestOwnershipIsEnforced(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	_, err := svc.UpdateDetails(ctx, stranger, p.ID, validation.ProductDetails{Title: s("Mine now")})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SetPricingTier(ctx, stranger, p.ID, validation.PricingTierInput{DurationUnit: "week", BasePrice: n(1)})
	require.ErrorIs(t, err, ErrForbidden)

	require.ErrorIs(t, svc.Delete(ctx, stranger, p.ID), ErrForbidden)

	_, err = svc.UpdateStatus(ctx, Actor{UserID: "moderator", IsStaff: true}, p.ID, "active", nil)
	require.NoError(t, err)
}

func TestUpdateDetails(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	updated, err := svc.UpdateDetails(ctx, owner, p.ID, validation.ProductDetails{Title: s("Mirrorless Camera"), Location: s("Dhaka")})
	require.NoError(t, err)
	require.Equal(t, "Mirrorless Camera", updated.Title)
	require.Equal(t, "Dhaka", updated.Location)

	_, err = svc.UpdateDetails(ctx, owner, p.ID, validation.ProductDetails{PurchaseYear: date(2030, 1, 1)})
	require.Equal(t, validation.FuturePurchaseYear, validation.CodeOf(err))
}

func TestImages(t *testing.T) {
	svc, _, imgs, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	many := make([]validation.ImageUpload, 9)
	for i := range many {
		many[i] = upload("extra.png")
	}
	_, err := svc.AddImages(ctx, owner, p.ID, many)
	require.Equal(t, validation.TooManyImages, validation.CodeOf(err))

	added, err := svc.AddImages(ctx, owner, p.ID, many[:8])
	require.NoError(t, err)
	require.Len(t, added, 8)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 10)

	require.NoError(t, svc.RemoveImage(ctx, owner, p.ID, got.Images[0].ID))
	require.Contains(t, imgs.deleted, got.Images[0].StorageKey)
	require.ErrorIs(t, svc.RemoveImage(ctx, owner, p.ID, "missing"), ErrNotFound)
}

func TestRemoveImage_KeepsLastImage(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	require.NoError(t, svc.RemoveImage(ctx, owner, p.ID, p.Images[0].ID))
	err := svc.RemoveImage(ctx, owner, p.ID, p.Images[1].ID)
	require.Equal(t, validation.TooFewImages, validation.CodeOf(err))
}

func TestPricingTiers(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	_, err := svc.SetPricingTier(ctx, owner, p.ID, validation.PricingTierInput{DurationUnit: "day", BasePrice: n(900), MaxPeriod: n(6)})
	require.NoError(t, err)
	_, err = svc.SetPricingTier(ctx, owner, p.ID, validation.PricingTierInput{DurationUnit: "week", BasePrice: n(5000)})
	require.NoError(t, err)

	got, _ := svc.Get(ctx, p.ID)
	require.Len(t, got.PricingTiers, 2)
	require.Equal(t, int64(900), *got.MinDailyPrice())

	_, err = svc.SetPricingTier(ctx, owner, p.ID, validation.PricingTierInput{DurationUnit: "year", BasePrice: n(1)})
	require.Equal(t, validation.InvalidDurationUnit, validation.CodeOf(err))

	require.NoError(t, svc.RemovePricingTier(ctx, owner, p.ID, models.DurationWeek))
	require.ErrorIs(t, svc.RemovePricingTier(ctx, owner, p.ID, models.DurationMonth), ErrNotFound)
}

func TestAvailability(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	ok, err := svc.IsDateAvailable(ctx, p.ID, *date(2024, 7, 1))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.IsDateAvailable(ctx, p.ID, *date(2024, 7, 2))
	require.NoError(t, err)
	require.True(t, ok)

	period, err := svc.AddUnavailablePeriod(ctx, owner, p.ID, validation.UnavailablePeriodInput{
		IsRange: true, RangeStart: date(2024, 6, 30), RangeEnd: date(2024, 7, 3),
	})
	require.NoError(t, err)

	ok, _ = svc.IsDateAvailable(ctx, p.ID, *date(2024, 7, 2))
	require.False(t, ok)

	days, err := svc.Calendar(ctx, p.ID, *date(2024, 6, 1), *date(2024, 7, 31))
	require.NoError(t, err)
	require.Len(t, days, 4)

	require.NoError(t, svc.RemoveUnavailablePeriod(ctx, owner, p.ID, period.ID))
	ok, _ = svc.IsDateAvailable(ctx, p.ID, *date(2024, 7, 2))
	require.True(t, ok)

	_, err = svc.IsDateAvailable(ctx, "missing", *date(2024, 7, 2))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementViewsTwice(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	require.NoError(t, svc.IncrementViews(ctx, p.ID))
	require.NoError(t, svc.IncrementViews(ctx, p.ID))

	got, _ := svc.Get(ctx, p.ID)
	require.Equal(t, int64(2), got.ViewsCount)
}

func TestView_SkipsOwner(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	_, err := svc.View(ctx, owner.UserID, p.ID)
	require.NoError(t, err)
	viewed, err := svc.View(ctx, "", p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), viewed.ViewsCount)
}

func TestUpdateAverageRating(t *testing.T) {
	svc, store, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	store.products[p.ID].AverageRating = f(4.0)
	store.products[p.ID].RentalCount = 2

	got, err := svc.UpdateAverageRating(ctx, owner, p.ID, 5)
	require.NoError(t, err)
	require.InDelta(t, 13.0/3.0, *got.AverageRating, 1e-9)

	_, err = svc.UpdateAverageRating(ctx, owner, p.ID, 6)
	require.Equal(t, validation.InvalidRating, validation.CodeOf(err))
}

func TestUpdateAverageRating_RequiresOwner(t *testing.T) {
	svc, store, _, pub := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)
	published := len(pub.events)

	_, err := svc.UpdateAverageRating(ctx, stranger, p.ID, 5)
	require.ErrorIs(t, err, ErrForbidden)
	require.Nil(t, store.products[p.ID].AverageRating)
	require.Len(t, pub.events, published)

	got, err := svc.UpdateAverageRating(ctx, Actor{UserID: "moderator", IsStaff: true}, p.ID, 5)
	require.NoError(t, err)
	require.InDelta(t, 5.0, *got.AverageRating, 1e-9)
}

func TestRecordRental_RatesBeforeCounting(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	got, err := svc.RecordRental(ctx, owner, p.ID, f(4))
	require.NoError(t, err)
	require.Equal(t, int64(1), got.RentalCount)
	require.InDelta(t, 4.0, *got.AverageRating, 1e-9)

	got, err = svc.RecordRental(ctx, owner, p.ID, f(5))
	require.NoError(t, err)
	require.Equal(t, int64(2), got.RentalCount)
	require.InDelta(t, 4.5, *got.AverageRating, 1e-9)

	got, err = svc.RecordRental(ctx, owner, p.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.RentalCount)
	require.InDelta(t, 4.5, *got.AverageRating, 1e-9)
}

func TestUpdateStatus(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	got, err := svc.UpdateStatus(ctx, owner, p.ID, "active", s("Approved"))
	require.NoError(t, err)
	require.Equal(t, models.ProductStatusActive, got.Status)
	require.Equal(t, "Approved", *got.StatusMessage)
	require.Equal(t, fixedNow, *got.StatusUpdatedAt)

	got, err = svc.UpdateStatus(ctx, owner, p.ID, "draft", nil)
	require.NoError(t, err)
	require.Equal(t, models.ProductStatusDraft, got.Status)
	require.Nil(t, got.StatusMessage)

	_, err = svc.UpdateStatus(ctx, owner, p.ID, "sold", nil)
	require.Equal(t, validation.InvalidStatus, validation.CodeOf(err))
}

func TestSwapRetriesOnConflict(t *testing.T) {
	svc, store, _, _ := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	conflicts := 1
	store.swapHook = func(id string) {
		if conflicts > 0 {
			conflicts--
			store.bumpVersion(id)
		}
	}
	got, err := svc.UpdateStatus(ctx, owner, p.ID, "inactive", nil)
	require.NoError(t, err)
	require.Equal(t, models.ProductStatusInactive, got.Status)

	store.swapHook = func(id string) { store.bumpVersion(id) }
	_, err = svc.UpdateAverageRating(ctx, owner, p.ID, 3)
	require.ErrorIs(t, err, ErrConcurrentUpdate)
}

func TestDelete(t *testing.T) {
	svc, _, imgs, pub := setup(t)
	ctx := context.Background()
	p := createProduct(t, svc)

	require.NoError(t, svc.Delete(ctx, owner, p.ID))
	require.Len(t, imgs.deleted, 2)
	require.Equal(t, recordedEvent{"delete", p.ID}, pub.events[len(pub.events)-1])

	_, err := svc.Get(ctx, p.ID)
	require.True(t, IsNotFound(err))
	require.True(t, errors.Is(svc.Delete(ctx, owner, p.ID), ErrNotFound))
}

func TestNextAverage(t *testing.T) {
	require.Equal(t, 5.0, NextAverage(nil, 0, 5))
	require.Equal(t, 3.0, NextAverage(nil, 4, 3))
	require.InDelta(t, 4.333333, NextAverage(f(4.0), 2, 5), 1e-6)
	require.Equal(t, 2.0, NextAverage(f(4.0), 0, 2))
}
