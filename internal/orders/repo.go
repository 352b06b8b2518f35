package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
	"github.com/edutrack/commerce-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the header and its items.
func (r *repository) Create(ctx context.Context, header *models.SalesOrderHeader) error {
	return r.db.WithContext(ctx).Create(header).Error
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.SalesOrderHeader, error) {
	var header models.SalesOrderHeader
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_name ASC") }).
		Where("order_number = ?", orderNumber).
		First(&header).Error
	if err != nil {
		return nil, err
	}
	return &header, nil
}

// LockByNumber reads the header FOR UPDATE, with items.
func (r *repository) LockByNumber(ctx context.Context, orderNumber string) (*models.SalesOrderHeader, error) {
	var header models.SalesOrderHeader
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_number = ?", orderNumber).
		First(&header).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", header.ID).
		Order("product_name ASC").
		Find(&header.Items).Error; err != nil {
		return nil, err
	}
	return &header, nil
}

// ListByUser returns one page of the user's orders, newest first, plus the total count.
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.SalesOrderHeader, int64, error) {
	params = pagination.Normalize(params)

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.SalesOrderHeader{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var headers []models.SalesOrderHeader
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_name ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&headers).Error
	if err != nil {
		return nil, 0, err
	}
	return headers, total, nil
}

func (r *repository) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.SalesOrderHeader{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// SetPaymentHandle stores the gateway token once. It reports false when a token was already present.
func (r *repository) SetPaymentHandle(ctx context.Context, orderID uuid.UUID, token, redirectURL string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SalesOrderHeader{}).
		Where("id = ? AND payment_token IS NULL", orderID).
		Updates(map[string]any{
			"payment_token":        token,
			"payment_redirect_url": redirectURL,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpiredOpen returns orders still awaiting payment whose deadline passed, oldest first.
func (r *repository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.SalesOrderHeader, error) {
	var headers []models.SalesOrderHeader
	query := r.db.WithContext(ctx).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusChallenge}).
		Where("expired_at < ?", now).
		Where("review_required_at IS NULL").
		Order("expired_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&headers).Error; err != nil {
		return nil, err
	}
	return headers, nil
}

func (r *repository) InvoiceNumbers(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Select("order_id", "invoice_number").
		Where("order_id IN ?", orderIDs).
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		out[inv.OrderID] = inv.InvoiceNumber
	}
	return out, nil
}
