package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const provider = "midtrans"

type deliveryStore interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	WebhookKey(provider, id string) string
}

// DeliveryGuard short-circuits exact duplicate deliveries. The database stays
// authoritative; the guard only saves work.
type DeliveryGuard struct {
	store deliveryStore
	ttl   time.Duration
}

func NewDeliveryGuard(store deliveryStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("delivery store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true when the delivery was already seen.
func (g *DeliveryGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookKey(provider, deliveryID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set delivery key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so a retry is processed again.
func (g *DeliveryGuard) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(provider, deliveryID))
}
