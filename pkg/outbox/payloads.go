package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edutrack/commerce-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout commits an order and its reservation.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	ExpiredAt   time.Time       `json:"expired_at"`
}

// OrderPaidEvent is emitted once per order when settlement succeeds.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	UserID           uuid.UUID       `json:"user_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	Amount           decimal.Decimal `json:"amount"`
	CoursesGranted   int             `json:"courses_granted"`
	ExamSlotsGranted int             `json:"exam_slots_granted"`
}

// OrderPaymentFailedEvent is emitted when the gateway reports a failed payment.
type OrderPaymentFailedEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	UserID        uuid.UUID         `json:"user_id"`
	GatewayStatus string            `json:"gateway_status"`
	Status        enums.OrderStatus `json:"status"`
	StockRestored bool              `json:"stock_restored"`
}

// OrderReviewRequiredEvent is emitted when a settlement cannot be applied
// automatically and the order is held for an operator.
type OrderReviewRequiredEvent struct {
	OrderID        uuid.UUID       `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	UserID         uuid.UUID       `json:"user_id"`
	Reason         string          `json:"reason"`
	GatewayStatus  string          `json:"gateway_status"`
	GrossAmount    string          `json:"gross_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
}

// OrderExpiredEvent is emitted when an unpaid order passes its deadline.
type OrderExpiredEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        uuid.UUID `json:"user_id"`
	ExpiredAt     time.Time `json:"expired_at"`
	StockRestored bool      `json:"stock_restored"`
	Reason        string    `json:"reason"`
}

// ProductUpdatedEvent is emitted for every catalog create or edit.
type ProductUpdatedEvent struct {
	ProductID       uuid.UUID   `json:"product_id"`
	Created         bool        `json:"created"`
	Stock           int         `json:"stock"`
	CoursesAdded    []uuid.UUID `json:"courses_added"`
	CoursesRemoved  []uuid.UUID `json:"courses_removed"`
	ExamsAdded      []uuid.UUID `json:"exams_added"`
	ExamsRemoved    []uuid.UUID `json:"exams_removed"`
	PriceRowsStored int         `json:"price_rows_stored"`
}

// EntitlementsReconciledEvent reports grants and revokes caused by a link change.
type EntitlementsReconciledEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	Granted   int       `json:"granted"`
	Revoked   int       `json:"revoked"`
}
