package catalog

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/edutrack/commerce-backend/pkg/db/models"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
)

func normalizeInput(in ProductInput) (ProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Level = strings.TrimSpace(in.Level)
	if in.Name == "" {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if in.Stock < 0 {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}
	var err error
	if in.CourseIDs, err = uniqueIDs(in.CourseIDs, "course_ids"); err != nil {
		return in, err
	}
	if in.ExamScheduleIDs, err = uniqueIDs(in.ExamScheduleIDs, "exam_schedule_ids"); err != nil {
		return in, err
	}
	if err := validatePrices(in.Prices); err != nil {
		return in, err
	}
	return in, nil
}

func uniqueIDs(ids []uuid.UUID, field string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, field+" must contain valid ids")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sortIDs(out)
	return out, nil
}

// validatePrices guarantees at most one price row covers any instant.
func validatePrices(prices []PriceInput) error {
	ordered := make([]PriceInput, len(prices))
	copy(ordered, prices)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectiveStart.Before(ordered[j].EffectiveStart)
	})

	for i, p := range ordered {
		details := map[string]any{"effective_start": p.EffectiveStart}
		if !p.Price.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive").WithDetails(details)
		}
		if p.PromoPrice != nil && (!p.PromoPrice.IsPositive() || p.PromoPrice.GreaterThan(p.Price)) {
			return pkgerrors.New(pkgerrors.CodeValidation, "promo price must be positive and not above price").WithDetails(details)
		}
		if p.EffectiveStart.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, "effective_start is required")
		}
		if p.EffectiveEnd != nil && !p.EffectiveEnd.After(p.EffectiveStart) {
			return pkgerrors.New(pkgerrors.CodeValidation, "effective_end must be after effective_start").WithDetails(details)
		}
		if i == 0 {
			continue
		}
		prev := ordered[i-1]
		if prev.EffectiveEnd == nil || prev.EffectiveEnd.After(p.EffectiveStart) {
			return pkgerrors.New(pkgerrors.CodeValidation, "price windows must not overlap").WithDetails(details)
		}
	}
	return nil
}

func priceRows(prices []PriceInput) []models.ProductPrice {
	rows := make([]models.ProductPrice, 0, len(prices))
	for _, p := range prices {
		rows = append(rows, models.ProductPrice{
			Price:          p.Price.Round(2),
			PromoLabel:     p.PromoLabel,
			PromoPrice:     p.PromoPrice,
			EffectiveStart: p.EffectiveStart.UTC(),
			EffectiveEnd:   utcPtr(p.EffectiveEnd),
		})
	}
	return rows
}

// diffIDs returns ids in desired but not current, and in current but not desired.
func diffIDs(current, desired []uuid.UUID) (added, removed []uuid.UUID) {
	have := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[uuid.UUID]struct{}, len(desired))
	for _, id := range desired {
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range current {
		if _, ok := want[id]; !ok {
			removed = append(removed, id)
		}
	}
	sortIDs(added)
	sortIDs(removed)
	return added, removed
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
