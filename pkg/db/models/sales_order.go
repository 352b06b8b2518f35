package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/pkg/enums"
)

type SalesOrderHeader struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber   string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:idx_sales_orders_user_created,priority:1"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending';index"`
	Currency      string              `gorm:"column:currency;not null;default:'IDR'"`

	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:numeric(14,2);not null"`
	DiscountTotal decimal.Decimal `gorm:"column:discount_total;type:numeric(14,2);not null"`
	TaxTotal      decimal.Decimal `gorm:"column:tax_total;type:numeric(14,2);not null"`
	GrandTotal    decimal.Decimal `gorm:"column:grand_total;type:numeric(14,2);not null"`

	PaymentToken       *string `gorm:"column:payment_token"`
	PaymentRedirectURL *string `gorm:"column:payment_redirect_url"`

	GatewayStatus   *string    `gorm:"column:gateway_status"`
	FraudStatus     *string    `gorm:"column:fraud_status"`
	TransactionID   *string    `gorm:"column:transaction_id"`
	TransactionTime *time.Time `gorm:"column:transaction_time"`
	SettlementTime  *time.Time `gorm:"column:settlement_time"`
	PaymentType     *string    `gorm:"column:payment_type"`
	Issuer          *string    `gorm:"column:issuer"`
	Acquirer        *string    `gorm:"column:acquirer"`

	ExpiredAt       time.Time  `gorm:"column:expired_at;not null;index"`
	PaidAt          *time.Time `gorm:"column:paid_at"`
	StockRestoredAt *time.Time `gorm:"column:stock_restored_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_sales_orders_user_created,priority:2"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	// A held order waits for an operator; notifications and expiry leave it alone.
	ReviewReason     *string    `gorm:"column:review_reason"`
	ReviewRequiredAt *time.Time `gorm:"column:review_required_at"`

	Items []SalesOrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

func (o *SalesOrderHeader) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// SalesOrderItem snapshots price and totals at purchase time.
type SalesOrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	ProductName string          `gorm:"column:product_name;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Subtotal    decimal.Decimal `gorm:"column:subtotal;type:numeric(14,2);not null"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(14,2);not null"`
	Tax         decimal.Decimal `gorm:"column:tax;type:numeric(14,2);not null"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(14,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *SalesOrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
