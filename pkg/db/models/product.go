package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a purchasable catalog entry. Stock is only written by the inventory ledger.
type Product struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Category    string    `gorm:"column:category;not null;default:''"`
	Level       string    `gorm:"column:level;not null;default:''"`
	Description *string   `gorm:"column:description"`
	Stock       int       `gorm:"column:stock;not null;default:0;check:chk_products_stock_non_negative,stock >= 0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductPrice is one window of a product's price history.
// A nil EffectiveEnd means the window is open ended.
type ProductPrice struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID      uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index:idx_product_prices_product_start,priority:1"`
	Price          decimal.Decimal  `gorm:"column:price;type:numeric(14,2);not null"`
	PromoLabel     *string          `gorm:"column:promo_label"`
	PromoPrice     *decimal.Decimal `gorm:"column:promo_price;type:numeric(14,2)"`
	EffectiveStart time.Time        `gorm:"column:effective_start;not null;index:idx_product_prices_product_start,priority:2"`
	EffectiveEnd   *time.Time       `gorm:"column:effective_end"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (p *ProductPrice) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Contains reports whether at falls inside [EffectiveStart, EffectiveEnd).
func (p ProductPrice) Contains(at time.Time) bool {
	if at.Before(p.EffectiveStart) {
		return false
	}
	return p.EffectiveEnd == nil || at.Before(*p.EffectiveEnd)
}

type ProductCourseLink struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	CourseID  uuid.UUID `gorm:"column:course_id;type:uuid;primaryKey;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

type ProductExamLink struct {
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	ExamScheduleID uuid.UUID `gorm:"column:exam_schedule_id;type:uuid;primaryKey;index"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
