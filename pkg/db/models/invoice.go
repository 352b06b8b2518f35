package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice exists at most once per order.
type Invoice struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber   string          `gorm:"column:invoice_number;not null;uniqueIndex"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID          uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency        string          `gorm:"column:currency;not null;default:'IDR'"`
	TransactionID   *string         `gorm:"column:transaction_id"`
	TransactionTime *time.Time      `gorm:"column:transaction_time"`
	SettlementTime  *time.Time      `gorm:"column:settlement_time"`
	PaymentType     *string         `gorm:"column:payment_type"`
	Issuer          *string         `gorm:"column:issuer"`
	Acquirer        *string         `gorm:"column:acquirer"`
	IssuedAt        time.Time       `gorm:"column:issued_at;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
