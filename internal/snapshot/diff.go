package snapshot

import (
	"fmt"
	"strconv"
	"time"

	"github.com/NiruddeshJatra/Bhara/internal/models"
)

// Build captures the tracked fields of p as of now
func Build(p *models.Product, now time.Time) *models.ProductSnapshot {
	return &models.ProductSnapshot{
		ProductID:     p.ID,
		SnapshotAt:    models.DateOf(now),
		Status:        string(p.Status),
		ViewsCount:    p.ViewsCount,
		RentalCount:   p.RentalCount,
		AverageRating: p.AverageRating,
		MinDailyPrice: p.MinDailyPrice(),
		ImageCount:    len(p.Images),
	}
}

// Diff lists the changes between last and the current state of p.
// A nil last means the product has never been snapshotted.
func Diff(p *models.Product, last *models.ProductSnapshot, now time.Time) []models.ProductChange {
	change := func(kind, oldValue, newValue string, magnitude *float64) models.ProductChange {
		return models.ProductChange{
			ProductID:       p.ID,
			ChangeType:      kind,
			OldValue:        oldValue,
			NewValue:        newValue,
			ChangeMagnitude: magnitude,
			DetectedAt:      now,
		}
	}

	if last == nil {
		return []models.ProductChange{change(models.ChangeTypeNew, "", "New product listed", nil)}
	}

	var changes []models.ProductChange

	if string(p.Status) != last.Status {
		kind := models.ChangeTypeStatus
		if p.Status == models.ProductStatusArchived {
			kind = models.ChangeTypeArchived
		}
		changes = append(changes, change(kind, last.Status, string(p.Status), nil))
	}

	if !floatPtrEqual(p.AverageRating, last.AverageRating) {
		var magnitude *float64
		if p.AverageRating != nil && last.AverageRating != nil {
			d := *p.AverageRating - *last.AverageRating
			magnitude = &d
		}
		changes = append(changes, change(models.ChangeTypeRating,
			formatFloat(last.AverageRating), formatFloat(p.AverageRating), magnitude))
	}

	price := p.MinDailyPrice()
	if !intPtrEqual(price, last.MinDailyPrice) {
		var magnitude *float64
		if price != nil && last.MinDailyPrice != nil {
			d := float64(*price - *last.MinDailyPrice)
			magnitude = &d
		}
		changes = append(changes, change(models.ChangeTypePrice,
			formatInt(last.MinDailyPrice), formatInt(price), magnitude))
	}

	if len(p.Images) != last.ImageCount {
		d := float64(len(p.Images) - last.ImageCount)
		changes = append(changes, change(models.ChangeTypeImages,
			strconv.Itoa(last.ImageCount), strconv.Itoa(len(p.Images)), &d))
	}

	return changes
}

func formatInt(v *int64) string {
	if v == nil {
		return "nil"
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%.2f", *v)
}

func intPtrEqual(a, b *int64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	// stored ratings carry two decimals
	return fmt.Sprintf("%.2f", *a) == fmt.Sprintf("%.2f", *b)
}
