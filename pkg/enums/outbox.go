package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateSalesOrder OutboxAggregateType = "sales_order"
	AggregateProduct    OutboxAggregateType = "product"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSalesOrder,
	AggregateProduct,
}

func (a OutboxAggregateType) String() string {
	return string(a)
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order.created"
	EventOrderPaid              OutboxEventType = "order.paid"
	EventOrderPaymentFailed     OutboxEventType = "order.payment_failed"
	EventOrderExpired           OutboxEventType = "order.expired"
	EventOrderReviewRequired    OutboxEventType = "order.review_required"
	EventCatalogProductUpdated  OutboxEventType = "catalog.product_updated"
	EventEntitlementsReconciled OutboxEventType = "entitlements.reconciled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderExpired,
	EventOrderReviewRequired,
	EventCatalogProductUpdated,
	EventEntitlementsReconciled,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
