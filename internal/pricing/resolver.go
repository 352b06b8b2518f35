// Package pricing resolves which row of a product's price history applies at
// a given instant.
package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edutrack/commerce-backend/pkg/db/models"
)

// Mode selects between display quoting and charging.
type Mode int

const (
	// ModeQuote prefers a strictly future-dated price over the active one.
	ModeQuote Mode = iota
	// ModeCharge only ever returns the price active at the reference time.
	ModeCharge
)

type priceReader interface {
	ListRelevant(ctx context.Context, productIDs []uuid.UUID, at time.Time) ([]models.ProductPrice, error)
}

// Resolver answers price lookups. It never errors on a missing price: an
// unpriced product is reported with ok=false.
type Resolver struct {
	repo priceReader
	now  func() time.Time
}

func NewResolver(repo priceReader) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("price repository required")
	}
	return &Resolver{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Resolve returns the selected price row of one product. A zero at means now.
func (r *Resolver) Resolve(ctx context.Context, productID uuid.UUID, at time.Time, mode Mode) (models.ProductPrice, bool, error) {
	prices, err := r.ResolveMany(ctx, []uuid.UUID{productID}, at, mode)
	if err != nil {
		return models.ProductPrice{}, false, err
	}
	price, ok := prices[productID]
	return price, ok, nil
}

// ResolveMany resolves several products with one query. Unpriced products are absent from the map.
func (r *Resolver) ResolveMany(ctx context.Context, productIDs []uuid.UUID, at time.Time, mode Mode) (map[uuid.UUID]models.ProductPrice, error) {
	if at.IsZero() {
		at = r.now()
	}
	rows, err := r.repo.ListRelevant(ctx, productIDs, at)
	if err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}

	byProduct := make(map[uuid.UUID][]models.ProductPrice, len(productIDs))
	for _, row := range rows {
		byProduct[row.ProductID] = append(byProduct[row.ProductID], row)
	}

	out := make(map[uuid.UUID]models.ProductPrice, len(byProduct))
	for productID, history := range byProduct {
		if price, ok := Select(history, at, mode); ok {
			out[productID] = price
		}
	}
	return out, nil
}

// Select picks a row from one product's history. Candidates are the row whose
// window contains at and, in ModeQuote, rows starting after at. Future rows
// outrank the active one, then the latest effective start wins.
func Select(history []models.ProductPrice, at time.Time, mode Mode) (models.ProductPrice, bool) {
	candidates := make([]models.ProductPrice, 0, len(history))
	for _, row := range history {
		switch {
		case row.Contains(at):
			candidates = append(candidates, row)
		case mode == ModeQuote && row.EffectiveStart.After(at):
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return models.ProductPrice{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		fi, fj := candidates[i].EffectiveStart.After(at), candidates[j].EffectiveStart.After(at)
		if fi != fj {
			return fi
		}
		return candidates[i].EffectiveStart.After(candidates[j].EffectiveStart)
	})
	return candidates[0], true
}

// UnitAmount is the amount charged per unit: the promo price when it undercuts the list price.
func UnitAmount(price models.ProductPrice) decimal.Decimal {
	if price.PromoPrice != nil && price.PromoPrice.IsPositive() && price.PromoPrice.LessThan(price.Price) {
		return *price.PromoPrice
	}
	return price.Price
}
