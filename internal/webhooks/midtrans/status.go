package midtranswebhook

import (
	"strings"

	"github.com/edutrack/commerce-backend/pkg/enums"
)

// Gateway transaction statuses that drive settlement.
const (
	GatewayCapture    = "capture"
	GatewaySettlement = "settlement"
	GatewayCancel     = "cancel"
	GatewayDeny       = "deny"
	GatewayExpire     = "expire"

	fraudChallenge = "challenge"
)

// MapStatus converts a gateway transaction status and fraud status into the
// internal payment status. Unknown statuses map to pending.
func MapStatus(transactionStatus, fraudStatus string) enums.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(transactionStatus)) {
	case GatewayCapture:
		if strings.EqualFold(strings.TrimSpace(fraudStatus), fraudChallenge) {
			return enums.PaymentStatusChallenge
		}
		return enums.PaymentStatusSuccess
	case GatewaySettlement:
		return enums.PaymentStatusSuccess
	case GatewayCancel, GatewayDeny, GatewayExpire:
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}

// LifecycleStatus derives the order status from a mapped payment status.
func LifecycleStatus(mapped enums.PaymentStatus, transactionStatus string) enums.OrderStatus {
	switch mapped {
	case enums.PaymentStatusSuccess:
		return enums.OrderStatusPaid
	case enums.PaymentStatusFailed:
		if strings.EqualFold(strings.TrimSpace(transactionStatus), GatewayExpire) {
			return enums.OrderStatusExpired
		}
		return enums.OrderStatusCanceled
	default:
		return enums.OrderStatusPending
	}
}
