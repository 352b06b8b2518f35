package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/internal/pricing"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
)

// Line is a priced, quantity-bearing snapshot of one selected cart line.
type Line struct {
	CartID      uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Price       models.ProductPrice
}

// SnapshotLoader turns a cart selection into priced lines. Only the price
// active at load time is used; future-dated prices are never charged.
type SnapshotLoader struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSnapshotLoader(db *gorm.DB) *SnapshotLoader {
	return &SnapshotLoader{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Load returns the selected lines present in the user's cart. Lines that are
// not selected are excluded, and a user without a cart yields no lines.
// A selected line whose product has no active price is a validation error.
// tx may be nil to read outside a transaction.
func (l *SnapshotLoader) Load(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) ([]Line, error) {
	if len(productIDs) == 0 {
		return []Line{}, nil
	}
	conn := l.db
	if tx != nil {
		conn = tx
	}

	rows, err := NewRepository(conn).ListLines(ctx, userID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	if len(rows) == 0 {
		return []Line{}, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	resolver, err := pricing.NewResolver(pricing.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	prices, err := resolver.ResolveMany(ctx, ids, l.now(), pricing.ModeCharge)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(rows))
	var unpriced []string
	for _, row := range rows {
		price, ok := prices[row.ProductID]
		if !ok {
			unpriced = append(unpriced, row.ProductID.String())
			continue
		}
		lines = append(lines, Line{
			CartID:      row.CartID,
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Quantity:    row.Quantity,
			UnitPrice:   pricing.UnitAmount(price),
			Price:       price,
		})
	}
	if len(unpriced) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selected products have no active price").
			WithDetails(map[string]any{"product_ids": unpriced})
	}
	return lines, nil
}
