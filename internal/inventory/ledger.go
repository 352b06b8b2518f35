// Package inventory is the only writer of products.stock.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutrack/commerce-backend/pkg/db/models"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
)

// ErrInsufficientStock is wrapped by the conflict returned from Reserve.
var ErrInsufficientStock = errors.New("insufficient inventory")

// Item is one (product, quantity) pair of an order.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

// Shortage describes the first product that could not be reserved.
type Shortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Ledger reserves and restores stock. Every method runs inside the caller's
// transaction and locks the affected product rows in id order.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// Reserve decrements stock for every item or for none of them. Quantities of
// repeated products are summed. On shortage the returned error wraps
// ErrInsufficientStock with CodeConflict and the caller must roll back.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, items []Item) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	wanted, err := aggregate(items)
	if err != nil {
		return err
	}

	ids := sortedIDs(wanted)
	locked, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return err
	}

	for _, id := range ids {
		product, ok := locked[id]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id.String()})
		}
		if product.Stock < wanted[id] {
			return shortage(id, wanted[id], product.Stock)
		}
	}

	now := l.now()
	for _, id := range ids {
		res := tx.WithContext(ctx).Exec(
			`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`,
			wanted[id], now, id, wanted[id],
		)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "decrement stock")
		}
		if res.RowsAffected != 1 {
			return shortage(id, wanted[id], locked[id].Stock)
		}
	}
	return nil
}

// Restore adds the quantities of the order's items back to stock, exactly
// once per order. It reports false when the order was already restored.
func (l *Ledger) Restore(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	now := l.now()

	claim := tx.WithContext(ctx).
		Model(&models.SalesOrderHeader{}).
		Where("order_number = ? AND stock_restored_at IS NULL", orderNumber).
		UpdateColumns(map[string]any{"stock_restored_at": now, "updated_at": now})
	if claim.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, claim.Error, "mark stock restored")
	}
	if claim.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Model(&models.SalesOrderHeader{}).
			Where("order_number = ?", orderNumber).Count(&count).Error; err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if count == 0 {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return false, nil
	}

	restored, err := orderQuantities(ctx, tx, orderNumber)
	if err != nil {
		return false, err
	}
	ids := sortedIDs(restored)
	if _, err := lockProducts(ctx, tx, ids); err != nil {
		return false, err
	}
	for _, id := range ids {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`,
			restored[id], now, id,
		).Error; err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment stock")
		}
	}
	return true, nil
}

// Reclaim takes a restored order's quantities back out of stock and clears
// stock_restored_at, for a payment that settles after the order was released.
// It reports false when the order's stock was never restored. A shortage
// returns the Reserve conflict before any row is written.
func (l *Ledger) Reclaim(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	var header models.SalesOrderHeader
	err := tx.WithContext(ctx).Select("id", "stock_restored_at").
		Where("order_number = ?", orderNumber).Take(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if header.StockRestoredAt == nil {
		return false, nil
	}

	quantities, err := orderQuantities(ctx, tx, orderNumber)
	if err != nil {
		return false, err
	}
	items := make([]Item, 0, len(quantities))
	for _, id := range sortedIDs(quantities) {
		items = append(items, Item{ProductID: id, Quantity: quantities[id]})
	}
	if err := l.Reserve(ctx, tx, items); err != nil {
		return false, err
	}
	if err := tx.WithContext(ctx).Model(&models.SalesOrderHeader{}).
		Where("id = ?", header.ID).
		UpdateColumns(map[string]any{"stock_restored_at": nil, "updated_at": l.now()}).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear stock restored mark")
	}
	return true, nil
}

// Set overwrites a product's stock. Catalog edits use it so stock keeps a single writer.
func (l *Ledger) Set(ctx context.Context, tx *gorm.DB, productID uuid.UUID, stock int) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}
	if _, err := lockProducts(ctx, tx, []uuid.UUID{productID}); err != nil {
		return err
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE products SET stock = ?, updated_at = ? WHERE id = ?`,
		stock, l.now(), productID,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "set stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func orderQuantities(ctx context.Context, tx *gorm.DB, orderNumber string) (map[uuid.UUID]int, error) {
	var rows []Item
	if err := tx.WithContext(ctx).
		Table("sales_order_items AS i").
		Select("i.product_id, SUM(i.quantity) AS quantity").
		Joins("JOIN sales_order_headers h ON h.id = i.order_id").
		Where("h.order_number = ?", orderNumber).
		Group("i.product_id").
		Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.ProductID] += row.Quantity
	}
	return out, nil
}

func aggregate(items []Item) (map[uuid.UUID]int, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items to reserve")
	}
	out := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		out[item.ProductID] += item.Quantity
	}
	return out, nil
}

func sortedIDs(m map[uuid.UUID]int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func lockProducts(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Product{}, nil
	}
	var products []models.Product
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock").
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock products")
	}
	out := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		out[product.ID] = product
	}
	return out, nil
}

func shortage(productID uuid.UUID, requested, available int) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInsufficientStock, "insufficient inventory").
		WithDetails(Shortage{ProductID: productID, Requested: requested, Available: available})
}
