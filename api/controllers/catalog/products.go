package catalog

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edutrack/commerce-backend/api/middleware"
	"github.com/edutrack/commerce-backend/api/responses"
	"github.com/edutrack/commerce-backend/api/validators"
	internalcatalog "github.com/edutrack/commerce-backend/internal/catalog"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
)

// Service edits catalog products.
type Service interface {
	Get(ctx context.Context, productID uuid.UUID) (*internalcatalog.ProductDTO, error)
	Create(ctx context.Context, actorID uuid.UUID, in internalcatalog.ProductInput) (*internalcatalog.EditResult, error)
	Update(ctx context.Context, actorID, productID uuid.UUID, in internalcatalog.ProductInput) (*internalcatalog.EditResult, error)
}

type productRequest struct {
	Name            string         `json:"name" validate:"required,max=200"`
	Category        string         `json:"category" validate:"required,max=100"`
	Level           string         `json:"level" validate:"required,max=100"`
	Description     *string        `json:"description,omitempty" validate:"omitempty,max=5000"`
	Stock           *int           `json:"stock" validate:"required,gte=0"`
	CourseIDs       []uuid.UUID    `json:"course_ids"`
	ExamScheduleIDs []uuid.UUID    `json:"exam_schedule_ids"`
	Prices          []priceRequest `json:"prices" validate:"required,min=1,dive"`
}

type priceRequest struct {
	Price          decimal.Decimal  `json:"price" validate:"money"`
	PromoLabel     *string          `json:"promo_label,omitempty" validate:"omitempty,max=100"`
	PromoPrice     *decimal.Decimal `json:"promo_price,omitempty" validate:"omitempty,money"`
	EffectiveStart time.Time        `json:"effective_start" validate:"required"`
	EffectiveEnd   *time.Time       `json:"effective_end,omitempty"`
}

func (p productRequest) toInput() internalcatalog.ProductInput {
	prices := make([]internalcatalog.PriceInput, 0, len(p.Prices))
	for _, price := range p.Prices {
		prices = append(prices, internalcatalog.PriceInput{
			Price:          price.Price,
			PromoLabel:     price.PromoLabel,
			PromoPrice:     price.PromoPrice,
			EffectiveStart: price.EffectiveStart,
			EffectiveEnd:   price.EffectiveEnd,
		})
	}
	return internalcatalog.ProductInput{
		Name:            p.Name,
		Category:        p.Category,
		Level:           p.Level,
		Description:     p.Description,
		Stock:           *p.Stock,
		CourseIDs:       p.CourseIDs,
		ExamScheduleIDs: p.ExamScheduleIDs,
		Prices:          prices,
	}
}

func AdminGetProduct(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func AdminCreateProduct(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		actorID, err := middleware.AuthenticatedUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload productRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Create(r.Context(), actorID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AdminUpdateProduct replaces a product's fields, links and price history.
func AdminUpdateProduct(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		actorID, err := middleware.AuthenticatedUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload productRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "product_id", productID.String())
		}
		result, err := svc.Update(ctx, actorID, productID, payload.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
