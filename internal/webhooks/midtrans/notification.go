package midtranswebhook

import (
	"strings"
	"time"

	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
)

const gatewayTimeLayout = "2006-01-02 15:04:05"

// gatewayZone is the zone Midtrans uses for transaction timestamps.
var gatewayZone = time.FixedZone("WIB", 7*60*60)

// Notification is the HTTP notification body sent by Midtrans.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
	PaymentType       string `json:"payment_type"`
	Issuer            string `json:"issuer"`
	Acquirer          string `json:"acquirer"`
	Currency          string `json:"currency"`
}

// IsHandshake reports whether the body is a reachability check with no
// settlement content.
func (n Notification) IsHandshake() bool {
	return strings.TrimSpace(n.OrderID) == "" && strings.TrimSpace(n.TransactionStatus) == ""
}

// Validate requires the fields every settlement needs.
func (n Notification) Validate() error {
	missing := make([]string, 0, 2)
	if strings.TrimSpace(n.OrderID) == "" {
		missing = append(missing, "order_id")
	}
	if strings.TrimSpace(n.TransactionStatus) == "" {
		missing = append(missing, "transaction_status")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification is missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// DeliveryID identifies one distinct delivery for dedupe purposes.
func (n Notification) DeliveryID() string {
	return strings.Join([]string{
		strings.TrimSpace(n.OrderID),
		strings.ToLower(strings.TrimSpace(n.TransactionStatus)),
		strings.TrimSpace(n.TransactionID),
	}, ":")
}

func parseGatewayTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseInLocation(gatewayTimeLayout, value, gatewayZone)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
