package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/edutrack/commerce-backend/api/responses"
	midtranswebhook "github.com/edutrack/commerce-backend/internal/webhooks/midtrans"
	"github.com/edutrack/commerce-backend/pkg/config"
	"github.com/edutrack/commerce-backend/pkg/enums"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/midtrans"
)

const maxNotificationBytes = 64 << 10

// SettlementProcessor applies a payment notification.
type SettlementProcessor interface {
	Process(ctx context.Context, n midtranswebhook.Notification) (midtranswebhook.Result, error)
}

// DeliveryGuard dedupes repeated deliveries of the same notification.
type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

type notificationResponse struct {
	Status         string              `json:"status"`
	OrderNumber    string              `json:"order_number,omitempty"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status,omitempty"`
	OrderStatus    enums.OrderStatus   `json:"order_status,omitempty"`
	InvoiceNumber  string              `json:"invoice_number,omitempty"`
	Duplicate      bool                `json:"duplicate,omitempty"`
	Ignored        bool                `json:"ignored,omitempty"`
	ReviewRequired bool                `json:"review_required,omitempty"`
}

// MidtransNotification handles Midtrans HTTP notifications. Any non-2xx
// response makes the gateway redeliver.
func MidtransNotification(cfg config.MidtransConfig, svc SettlementProcessor, guard DeliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement processor unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if len(bytes.TrimSpace(payload)) == 0 {
			responses.WriteJSON(w, http.StatusOK, notificationResponse{Status: "ok"})
			return
		}

		var n midtranswebhook.Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification body"))
			return
		}
		if n.IsHandshake() {
			responses.WriteJSON(w, http.StatusOK, notificationResponse{Status: "ok"})
			return
		}
		if err := n.Validate(); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderNumber(ctx, n.OrderID)
			ctx = logg.WithField(ctx, "transaction_status", n.TransactionStatus)
		}
		if cfg.VerifySignature && !midtrans.VerifySignature(n.SignatureKey, n.OrderID, n.StatusCode, n.GrossAmount, cfg.ServerKey) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid notification signature"))
			return
		}

		deliveryID := n.DeliveryID()
		seen, err := guard.CheckAndMark(ctx, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivery"))
			return
		}
		if seen {
			if logg != nil {
				logg.Info(ctx, "duplicate notification skipped")
			}
			responses.WriteJSON(w, http.StatusOK, notificationResponse{Status: "ok", OrderNumber: n.OrderID, Duplicate: true})
			return
		}

		result, err := svc.Process(ctx, n)
		if err != nil {
			if relErr := guard.Release(context.WithoutCancel(ctx), deliveryID); relErr != nil && logg != nil {
				logg.Error(ctx, "release delivery guard", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, notificationResponse{
			Status:         "ok",
			OrderNumber:    result.OrderNumber,
			PaymentStatus:  result.PaymentStatus,
			OrderStatus:    result.Status,
			InvoiceNumber:  result.InvoiceNumber,
			Ignored:        result.Ignored,
			ReviewRequired: result.ReviewRequired,
		})
	}
}
