package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/edutrack/commerce-backend/api/middleware"
	"github.com/edutrack/commerce-backend/api/responses"
	"github.com/edutrack/commerce-backend/api/validators"
	internalcart "github.com/edutrack/commerce-backend/internal/cart"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
)

// Service manages the caller's cart.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*internalcart.View, error)
	SetItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartItem, error)
}

type setItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  *int      `json:"quantity" validate:"required,gte=0,lte=1000"`
}

// CartFetch returns the caller's cart priced for display.
func CartFetch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := middleware.AuthenticatedUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartSetItem upserts one cart line and returns the refreshed cart.
func CartSetItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := middleware.AuthenticatedUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload setItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.SetItem(r.Context(), userID, payload.ProductID, *payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
