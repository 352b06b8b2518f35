package metrics

import "github.com/prometheus/client_golang/prometheus"

// Checkout outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeValidation   = "validation"
	OutcomeConflict     = "conflict"
	OutcomeGatewayError = "gateway_error"
	OutcomeError        = "error"
)

// CommerceMetrics counts checkout attempts and settlement notifications.
type CommerceMetrics struct {
	checkouts     *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewCommerceMetrics registers the commerce collectors. A nil registerer yields a no-op recorder.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_notifications_total",
		Help: "Processed settlement notifications by mapped payment status.",
	}, []string{"mapped_status"})
	reg.MustRegister(checkouts, notifications)
	return &CommerceMetrics{checkouts: checkouts, notifications: notifications}
}

func (m *CommerceMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *CommerceMetrics) IncNotification(mappedStatus string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(mappedStatus)).Inc()
}
