package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edutrack/commerce-backend/pkg/db/models"
)

// ProductInput is the full desired state of a product.
type ProductInput struct {
	Name            string
	Category        string
	Level           string
	Description     *string
	Stock           int
	CourseIDs       []uuid.UUID
	ExamScheduleIDs []uuid.UUID
	Prices          []PriceInput
}

// PriceInput is one window of the replacement price history.
type PriceInput struct {
	Price          decimal.Decimal
	PromoLabel     *string
	PromoPrice     *decimal.Decimal
	EffectiveStart time.Time
	EffectiveEnd   *time.Time
}

// ProductDTO is the admin view of a product.
type ProductDTO struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Category        string      `json:"category"`
	Level           string      `json:"level"`
	Description     *string     `json:"description,omitempty"`
	Stock           int         `json:"stock"`
	CourseIDs       []uuid.UUID `json:"course_ids"`
	ExamScheduleIDs []uuid.UUID `json:"exam_schedule_ids"`
	Prices          []PriceDTO  `json:"prices"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type PriceDTO struct {
	ID             uuid.UUID        `json:"id"`
	Price          decimal.Decimal  `json:"price"`
	PromoLabel     *string          `json:"promo_label,omitempty"`
	PromoPrice     *decimal.Decimal `json:"promo_price,omitempty"`
	EffectiveStart time.Time        `json:"effective_start"`
	EffectiveEnd   *time.Time       `json:"effective_end,omitempty"`
}

// EditResult reports what an edit changed besides the product row.
type EditResult struct {
	Product             *ProductDTO `json:"product"`
	EntitlementsGranted int         `json:"entitlements_granted"`
	EntitlementsRevoked int         `json:"entitlements_revoked"`
}

func newProductDTO(product models.Product, courseIDs, examIDs []uuid.UUID, prices []models.ProductPrice) *ProductDTO {
	if courseIDs == nil {
		courseIDs = []uuid.UUID{}
	}
	if examIDs == nil {
		examIDs = []uuid.UUID{}
	}
	rows := make([]PriceDTO, 0, len(prices))
	for _, p := range prices {
		rows = append(rows, PriceDTO{
			ID:             p.ID,
			Price:          p.Price,
			PromoLabel:     p.PromoLabel,
			PromoPrice:     p.PromoPrice,
			EffectiveStart: p.EffectiveStart,
			EffectiveEnd:   p.EffectiveEnd,
		})
	}
	return &ProductDTO{
		ID:              product.ID,
		Name:            product.Name,
		Category:        product.Category,
		Level:           product.Level,
		Description:     product.Description,
		Stock:           product.Stock,
		CourseIDs:       courseIDs,
		ExamScheduleIDs: examIDs,
		Prices:          rows,
		CreatedAt:       product.CreatedAt,
		UpdatedAt:       product.UpdatedAt,
	}
}
