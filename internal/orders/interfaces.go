package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/pagination"
)

// Repository defines persistence operations for sales order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, header *models.SalesOrderHeader) error
	FindByNumber(ctx context.Context, orderNumber string) (*models.SalesOrderHeader, error)
	LockByNumber(ctx context.Context, orderNumber string) (*models.SalesOrderHeader, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.SalesOrderHeader, int64, error)
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	SetPaymentHandle(ctx context.Context, orderID uuid.UUID, token, redirectURL string) (bool, error)
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.SalesOrderHeader, error)
	InvoiceNumbers(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]string, error)
}
