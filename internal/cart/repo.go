package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutrack/commerce-backend/pkg/db/models"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUser returns the user's cart, or nil when none was created yet.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreate returns the user's cart, creating it on first use.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	candidate := models.Cart{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&candidate).Error; err != nil {
		return nil, err
	}
	var cart models.Cart
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// ListItems returns the lines of a cart, oldest first.
func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var rows []models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// UpsertItem sets the quantity of a product line.
func (r *Repository) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*models.CartItem, error) {
	item := models.CartItem{CartID: cartID, ProductID: productID, Quantity: quantity}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(&item).Error
	if err != nil {
		return nil, err
	}
	var stored models.CartItem
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// AddQuantities adds each quantity onto the matching line, recreating lines
// that are gone. A line is never raised above the product's current stock and
// an existing line is never lowered.
func (r *Repository) AddQuantities(ctx context.Context, cartID uuid.UUID, quantities map[uuid.UUID]int) error {
	if len(quantities) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}

	var products []models.Product
	if err := r.db.WithContext(ctx).Select("id", "stock").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return err
	}
	var lines []models.CartItem
	if err := r.db.WithContext(ctx).Where("cart_id = ? AND product_id IN ?", cartID, ids).Find(&lines).Error; err != nil {
		return err
	}
	current := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		current[line.ProductID] = line.Quantity
	}

	now := time.Now().UTC()
	for _, product := range products {
		target := current[product.ID] + quantities[product.ID]
		if target > product.Stock {
			target = product.Stock
		}
		if target <= current[product.ID] {
			continue
		}
		item := models.CartItem{CartID: cartID, ProductID: product.ID, Quantity: target}
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"quantity":   target,
					"updated_at": now,
				}),
			}).
			Create(&item).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// RemoveProducts deletes the given product lines from a cart.
func (r *Repository) RemoveProducts(ctx context.Context, cartID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id IN ?", cartID, productIDs).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// Touch bumps the cart's updated_at.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumn("updated_at", at).Error
}

// LineRow is one cart item joined with its product.
type LineRow struct {
	CartID      uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	Stock       int
}

// ListLines returns the user's cart lines joined with product data. A nil
// filter returns every line.
func (r *Repository) ListLines(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) ([]LineRow, error) {
	query := r.db.WithContext(ctx).
		Table("cart_items AS ci").
		Select("ci.cart_id, ci.product_id, p.name AS product_name, ci.quantity, p.stock").
		Joins("JOIN carts c ON c.id = ci.cart_id").
		Joins("JOIN products p ON p.id = ci.product_id").
		Where("c.user_id = ?", userID)
	if productIDs != nil {
		query = query.Where("ci.product_id IN ?", productIDs)
	}
	var rows []LineRow
	err := query.Order("ci.created_at ASC").Order("ci.product_id ASC").Scan(&rows).Error
	return rows, err
}
