package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edutrack/commerce-backend/api/middleware"
	"github.com/edutrack/commerce-backend/api/responses"
	"github.com/edutrack/commerce-backend/api/validators"
	checkoutsvc "github.com/edutrack/commerce-backend/internal/checkout"
	"github.com/edutrack/commerce-backend/internal/orders"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
)

// CheckoutService starts a checkout for the authenticated buyer.
type CheckoutService interface {
	Checkout(ctx context.Context, in checkoutsvc.Input) (*orders.OrderSummary, error)
}

type checkoutRequest struct {
	ProductIDs []uuid.UUID      `json:"product_ids" validate:"required,min=1,max=100"`
	Promo      *decimal.Decimal `json:"promo,omitempty" validate:"omitempty,money"`
}

// Checkout converts the selected cart lines into an order and a payment handle.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := middleware.AuthenticatedUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		promo := decimal.Zero
		if payload.Promo != nil {
			promo = *payload.Promo
		}

		summary, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			UserID:     userID,
			ProductIDs: payload.ProductIDs,
			Promo:      promo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, summary)
	}
}
