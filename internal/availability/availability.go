// Package availability answers whether a product can be booked on a date.
// A date is available unless some unavailable period covers it; periods are
// an additive overlay and may overlap freely.
package availability

import (
	"context"
	"sort"
	"time"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

// IsDateAvailable reports whether no period covers date
func IsDateAvailable(periods []models.UnavailablePeriod, date time.Time) bool {
	for i := range periods {
		if periods[i].Covers(date) {
			return false
		}
	}
	return true
}

// IsRangeAvailable reports whether every day from start to end inclusive is available
func IsRangeAvailable(periods []models.UnavailablePeriod, start, end time.Time) bool {
	from, to := models.DateOf(start), models.DateOf(end)
	if from.After(to) {
		return false
	}
	for i := range periods {
		first, last, ok := periods[i].Bounds()
		if !ok {
			continue
		}
		if !last.Before(from) && !first.After(to) {
			return false
		}
	}
	return true
}

// BlockedDates lists the unavailable days between from and to inclusive, sorted and de-duplicated
func BlockedDates(periods []models.UnavailablePeriod, from, to time.Time) []time.Time {
	lo, hi := models.DateOf(from), models.DateOf(to)
	if lo.After(hi) {
		return nil
	}

	seen := make(map[time.Time]struct{})
	for i := range periods {
		first, last, ok := periods[i].Bounds()
		if !ok {
			continue
		}
		if first.Before(lo) {
			first = lo
		}
		if last.After(hi) {
			last = hi
		}
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			seen[d] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// NextAvailableDate finds the first available day on or after from, looking at most horizon days ahead
func NextAvailableDate(periods []models.UnavailablePeriod, from time.Time, horizon int) (time.Time, bool) {
	d := models.DateOf(from)
	for i := 0; i <= horizon; i++ {
		if IsDateAvailable(periods, d) {
			return d, true
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

// PeriodStore evaluates the availability predicate in the backing store
type PeriodStore interface {
	CountCoveringPeriods(ctx context.Context, productID string, date time.Time) (int64, error)
	ListUnavailablePeriods(ctx context.Context, productID string) ([]models.UnavailablePeriod, error)
}

// Checker answers availability for persisted products
type Checker struct {
	store PeriodStore
}

// NewChecker creates a Checker over store
func NewChecker(store PeriodStore) *Checker {
	return &Checker{store: store}
}

// IsDateAvailable reports whether no stored period of productID covers date
func (c *Checker) IsDateAvailable(ctx context.Context, productID string, date time.Time) (bool, error) {
	n, err := c.store.CountCoveringPeriods(ctx, productID, models.DateOf(date))
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Calendar returns the blocked days of productID within the window
func (c *Checker) Calendar(ctx context.Context, productID string, from, to time.Time) ([]time.Time, error) {
	periods, err := c.store.ListUnavailablePeriods(ctx, productID)
	if err != nil {
		return nil, err
	}
	return BlockedDates(periods, from, to), nil
}
