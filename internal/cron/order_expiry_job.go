package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/internal/orders"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/outbox"
)

const (
	defaultExpiryBatchSize = 100
	expiryReason           = "payment_window_elapsed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderExpiryJobParams configure the order expiry job.
type OrderExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Stock     stockRestorer
	Outbox    outboxEmitter
	BatchSize int
}

// NewOrderExpiryJob builds the job that fails unpaid orders past their deadline.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		orders: params.Orders,
		stock:  params.Stock,
		outbox: params.Outbox,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	orders orders.Repository
	stock  stockRestorer
	outbox outboxEmitter
	batch  int
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	candidates, err := j.orders.ListExpiredOpen(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("query expired orders: %w", err)
	}

	var errs error
	expired := 0
	for _, candidate := range candidates {
		ok, err := j.expireOrder(ctx, candidate.OrderNumber, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", candidate.OrderNumber, err))
			continue
		}
		if ok {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "order expiry loop complete")
	return errs
}

// expireOrder re-checks the order under its row lock so a settlement that
// committed after the listing query wins.
func (j *orderExpiryJob) expireOrder(ctx context.Context, orderNumber string, now time.Time) (bool, error) {
	expired := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)
		current, err := repo.LockByNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		if !stillExpirable(current, now) {
			return nil
		}
		if err := repo.Update(ctx, current.ID, map[string]any{
			"status":         enums.OrderStatusExpired,
			"payment_status": enums.PaymentStatusFailed,
			"updated_at":     now,
		}); err != nil {
			return err
		}
		restored, err := j.stock.Restore(ctx, tx, current.OrderNumber)
		if err != nil {
			return err
		}
		expired = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateSalesOrder,
			AggregateID:   current.ID,
			Data: outbox.OrderExpiredEvent{
				OrderID:       current.ID,
				OrderNumber:   current.OrderNumber,
				UserID:        current.UserID,
				ExpiredAt:     now,
				StockRestored: restored,
				Reason:        expiryReason,
			},
			OccurredAt: now,
		})
	})
	return expired, err
}

func stillExpirable(order *models.SalesOrderHeader, now time.Time) bool {
	return order.PaymentStatus.IsOpen() && order.ExpiredAt.Before(now) && order.ReviewRequiredAt == nil
}
