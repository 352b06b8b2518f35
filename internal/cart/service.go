package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/internal/pricing"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type quoteResolver interface {
	ResolveMany(ctx context.Context, productIDs []uuid.UUID, at time.Time, mode pricing.Mode) (map[uuid.UUID]models.ProductPrice, error)
}

// View is the cart as shown to its owner, priced for display.
type View struct {
	CartID    *uuid.UUID `json:"cart_id,omitempty"`
	Items     []ViewItem `json:"items"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type ViewItem struct {
	ProductID    uuid.UUID        `json:"product_id"`
	ProductName  string           `json:"product_name"`
	Quantity     int              `json:"quantity"`
	Stock        int              `json:"stock"`
	DisplayPrice *decimal.Decimal `json:"display_price,omitempty"`
	PromoLabel   *string          `json:"promo_label,omitempty"`
	Purchasable  bool             `json:"purchasable"`
}

// Service manages a user's cart lines.
type Service struct {
	db     *gorm.DB
	tx     txRunner
	prices quoteResolver
	now    func() time.Time
}

func NewService(db *gorm.DB, tx txRunner, prices quoteResolver) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if prices == nil {
		return nil, fmt.Errorf("price resolver required")
	}
	return &Service{db: db, tx: tx, prices: prices, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Get returns the user's cart with display prices. A missing cart is empty, not an error.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	repo := NewRepository(s.db)
	cart, err := repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	view := &View{Items: []ViewItem{}}
	if cart == nil {
		return view, nil
	}
	view.CartID = &cart.ID
	view.UpdatedAt = &cart.UpdatedAt

	rows, err := repo.ListLines(ctx, userID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart lines")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	quotes, err := s.prices.ResolveMany(ctx, ids, s.now(), pricing.ModeQuote)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve display prices")
	}
	active, err := s.prices.ResolveMany(ctx, ids, s.now(), pricing.ModeCharge)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve active prices")
	}

	for _, row := range rows {
		item := ViewItem{
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Quantity:    row.Quantity,
			Stock:       row.Stock,
		}
		if quote, ok := quotes[row.ProductID]; ok {
			amount := pricing.UnitAmount(quote)
			item.DisplayPrice = &amount
			item.PromoLabel = quote.PromoLabel
		}
		_, priced := active[row.ProductID]
		item.Purchasable = priced && row.Stock > 0
		view.Items = append(view.Items, item)
	}
	return view, nil
}

// SetItem sets the quantity of one product in the user's cart, clamped to
// the product's current stock. Zero removes the line.
func (s *Service) SetItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartItem, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	var result *models.CartItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.WithContext(ctx).Select("id", "stock").First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}

		repo := NewRepository(tx)
		cart, err := repo.GetOrCreate(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}

		if quantity == 0 {
			if _, err := repo.RemoveProducts(ctx, cart.ID, []uuid.UUID{productID}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart line")
			}
			return repo.Touch(ctx, cart.ID, s.now())
		}
		if product.Stock <= 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "product is out of stock").
				WithDetails(map[string]any{"product_id": productID.String(), "available": 0})
		}

		qty := min(quantity, product.Stock)
		item, err := repo.UpsertItem(ctx, cart.ID, productID, qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert cart line")
		}
		result = item
		return repo.Touch(ctx, cart.ID, s.now())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
