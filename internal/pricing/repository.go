package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/pkg/db/models"
)

// Repository reads and replaces product price history.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ListRelevant returns the rows of the given products whose window is open at
// or after at. Rows that ended before at can never be selected.
func (r *Repository) ListRelevant(ctx context.Context, productIDs []uuid.UUID, at time.Time) ([]models.ProductPrice, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var rows []models.ProductPrice
	err := r.db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Where("effective_end IS NULL OR effective_end > ?", at).
		Order("product_id ASC").
		Order("effective_start DESC").
		Find(&rows).Error
	return rows, err
}

// ListByProduct returns the full history of one product, newest window first.
func (r *Repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.ProductPrice, error) {
	var rows []models.ProductPrice
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("effective_start DESC").
		Find(&rows).Error
	return rows, err
}

// Replace deletes the product's history and inserts rows in its place.
func (r *Repository) Replace(ctx context.Context, productID uuid.UUID, rows []models.ProductPrice) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("product_id = ?", productID).Delete(&models.ProductPrice{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].ProductID = productID
	}
	return tx.Create(&rows).Error
}
