// Package midtranswebhook settles orders from Midtrans payment notifications.
package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/internal/entitlements"
	"github.com/edutrack/commerce-backend/internal/inventory"
	"github.com/edutrack/commerce-backend/internal/invoices"
	"github.com/edutrack/commerce-backend/internal/orders"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/midtrans"
	"github.com/edutrack/commerce-backend/pkg/outbox"
)

const tracerName = "github.com/edutrack/commerce-backend/internal/webhooks/midtrans"

// Reasons recorded on an order held for review.
const (
	ReviewAmountMismatch   = "gross_amount_mismatch"
	ReviewStockUnavailable = "stock_unavailable"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error)
	Reclaim(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error)
}

type invoiceIssuer interface {
	Issue(ctx context.Context, tx *gorm.DB, order *models.SalesOrderHeader, meta invoices.Settlement) (*models.Invoice, bool, error)
}

type entitlementGranter interface {
	GrantForProducts(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) (entitlements.Granted, error)
}

type notificationRecorder interface {
	IncNotification(mappedStatus string)
}

type ProcessorParams struct {
	Logger       *logger.Logger
	Tx           txRunner
	Orders       orders.Repository
	Stock        stockRestorer
	Invoices     invoiceIssuer
	Entitlements entitlementGranter
	Outbox       outbox.Emitter
	Metrics      notificationRecorder
}

type Processor struct {
	logg         *logger.Logger
	tx           txRunner
	orders       orders.Repository
	stock        stockRestorer
	invoices     invoiceIssuer
	entitlements entitlementGranter
	outbox       outbox.Emitter
	metrics      notificationRecorder
	tracer       trace.Tracer
	now          func() time.Time
}

// Result describes what one notification did to its order.
type Result struct {
	OrderNumber    string
	PaymentStatus  enums.PaymentStatus
	Status         enums.OrderStatus
	InvoiceNumber  string
	InvoiceIssued  bool
	StockRestored  bool
	StockReclaimed bool
	Ignored        bool
	ReviewRequired bool
	ReviewReason   string
}

func NewProcessor(p ProcessorParams) (*Processor, error) {
	switch {
	case p.Tx == nil:
		return nil, errors.New("tx runner required")
	case p.Orders == nil:
		return nil, errors.New("orders repository required")
	case p.Stock == nil:
		return nil, errors.New("stock restorer required")
	case p.Invoices == nil:
		return nil, errors.New("invoice issuer required")
	case p.Entitlements == nil:
		return nil, errors.New("entitlement granter required")
	case p.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Processor{
		logg:         logg,
		tx:           p.Tx,
		orders:       p.Orders,
		stock:        p.Stock,
		invoices:     p.Invoices,
		entitlements: p.Entitlements,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		tracer:       otel.Tracer(tracerName),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Process applies a notification in one transaction. Redelivery is safe: the
// invoice is issued once, grants are upserts and stock is restored once.
func (p *Processor) Process(ctx context.Context, n Notification) (result Result, err error) {
	if err := n.Validate(); err != nil {
		return Result{}, err
	}
	mapped := MapStatus(n.TransactionStatus, n.FraudStatus)

	ctx, span := p.tracer.Start(ctx, "settlement.Process", trace.WithAttributes(
		attribute.String("order.number", n.OrderID),
		attribute.String("gateway.status", n.TransactionStatus),
		attribute.String("payment.status", mapped.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(pkgerrors.CodeOf(err)))
		}
		span.End()
	}()

	ctx = p.logg.WithOrderNumber(ctx, n.OrderID)
	ctx = p.logg.WithFields(ctx, map[string]any{
		"gateway_status": n.TransactionStatus,
		"mapped_status":  mapped.String(),
	})

	err = p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = p.apply(ctx, tx, n, mapped)
		return txErr
	})
	if err != nil {
		p.logg.Error(ctx, "settlement failed", err)
		return Result{}, err
	}
	if p.metrics != nil {
		p.metrics.IncNotification(mapped.String())
	}

	switch {
	case result.Ignored && result.ReviewRequired:
		p.logg.Warn(ctx, "notification ignored for order held for review")
	case result.Ignored:
		p.logg.Warn(ctx, "notification ignored for settled order")
	case result.ReviewRequired:
		p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
			"review_reason": result.ReviewReason,
			"gross_amount":  n.GrossAmount,
		}), "settlement held for review")
	default:
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{
			"invoice_issued":  result.InvoiceIssued,
			"stock_restored":  result.StockRestored,
			"stock_reclaimed": result.StockReclaimed,
		}), "settlement applied")
	}
	return result, nil
}

func (p *Processor) apply(ctx context.Context, tx *gorm.DB, n Notification, mapped enums.PaymentStatus) (Result, error) {
	repo := p.orders.WithTx(tx)
	order, err := repo.LockByNumber(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"order_number": n.OrderID})
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}

	result := Result{OrderNumber: order.OrderNumber, PaymentStatus: order.PaymentStatus, Status: order.Status}
	if order.ReviewRequiredAt != nil {
		result.Ignored = true
		result.ReviewRequired = true
		if order.ReviewReason != nil {
			result.ReviewReason = *order.ReviewReason
		}
		return result, nil
	}
	if !transitionAllowed(order.PaymentStatus, mapped) {
		result.Ignored = true
		return result, nil
	}

	now := p.now()
	meta := settlementMeta(n, order.Currency)
	if mapped == enums.PaymentStatusSuccess && order.PaymentStatus != enums.PaymentStatusSuccess {
		expected := decimal.NewFromInt(midtrans.GrossAmount(order.GrandTotal))
		paid, ok := parseGrossAmount(n.GrossAmount)
		if !ok || !paid.Equal(expected) {
			return p.holdForReview(ctx, tx, order, n, ReviewAmountMismatch, expected, result, now)
		}
		meta.Amount = paid

		// A payment that lands after expiry needs its released units back.
		if order.StockRestoredAt != nil {
			reclaimed, err := p.stock.Reclaim(ctx, tx, order.OrderNumber)
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return p.holdForReview(ctx, tx, order, n, ReviewStockUnavailable, expected, result, now)
			}
			if err != nil {
				return Result{}, err
			}
			result.StockReclaimed = reclaimed
		}
	}

	status := LifecycleStatus(mapped, n.TransactionStatus)
	updates := map[string]any{
		"payment_status": mapped,
		"status":         status,
		"gateway_status": optional(n.TransactionStatus),
		"fraud_status":   optional(n.FraudStatus),
		"updated_at":     now,
	}
	if meta.TransactionID != nil {
		updates["transaction_id"] = meta.TransactionID
	}
	if meta.TransactionTime != nil {
		updates["transaction_time"] = meta.TransactionTime
	}
	if meta.SettlementTime != nil {
		updates["settlement_time"] = meta.SettlementTime
	}
	if meta.PaymentType != nil {
		updates["payment_type"] = meta.PaymentType
	}
	if meta.Issuer != nil {
		updates["issuer"] = meta.Issuer
	}
	if meta.Acquirer != nil {
		updates["acquirer"] = meta.Acquirer
	}
	if mapped == enums.PaymentStatusSuccess && order.PaidAt == nil {
		updates["paid_at"] = now
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
	}
	result.PaymentStatus = mapped
	result.Status = status

	switch mapped {
	case enums.PaymentStatusFailed:
		restored, err := p.stock.Restore(ctx, tx, order.OrderNumber)
		if err != nil {
			return Result{}, err
		}
		result.StockRestored = restored
		if order.PaymentStatus == enums.PaymentStatusFailed {
			return result, nil
		}
		err = p.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentFailed,
			AggregateType: enums.AggregateSalesOrder,
			AggregateID:   order.ID,
			Data: outbox.OrderPaymentFailedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        order.UserID,
				GatewayStatus: n.TransactionStatus,
				Status:        status,
				StockRestored: restored,
			},
			OccurredAt: now,
		})
		return result, err

	case enums.PaymentStatusSuccess:
		return p.settle(ctx, tx, order, meta, result, now)
	}
	return result, nil
}

func (p *Processor) settle(ctx context.Context, tx *gorm.DB, order *models.SalesOrderHeader, meta invoices.Settlement, result Result, now time.Time) (Result, error) {
	invoice, created, err := p.invoices.Issue(ctx, tx, order, meta)
	if err != nil {
		return Result{}, err
	}
	result.InvoiceNumber = invoice.InvoiceNumber
	result.InvoiceIssued = created
	if !created {
		return result, nil
	}

	productIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	granted, err := p.entitlements.GrantForProducts(ctx, tx, order.UserID, productIDs)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "grant entitlements")
	}

	err = p.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateSalesOrder,
		AggregateID:   order.ID,
		Data: outbox.OrderPaidEvent{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			UserID:           order.UserID,
			InvoiceNumber:    invoice.InvoiceNumber,
			Amount:           invoice.Amount,
			CoursesGranted:   granted.Courses,
			ExamSlotsGranted: granted.ExamSlots,
		},
		OccurredAt: now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("emit order.paid: %w", err)
	}
	return result, nil
}

// holdForReview parks a settlement that cannot be applied as-is. Payment
// status is left untouched; the gateway fields are kept for the operator.
func (p *Processor) holdForReview(ctx context.Context, tx *gorm.DB, order *models.SalesOrderHeader, n Notification, reason string, expected decimal.Decimal, result Result, now time.Time) (Result, error) {
	updates := map[string]any{
		"review_reason":      reason,
		"review_required_at": now,
		"gateway_status":     optional(n.TransactionStatus),
		"fraud_status":       optional(n.FraudStatus),
		"updated_at":         now,
	}
	if id := optional(n.TransactionID); id != nil {
		updates["transaction_id"] = id
	}
	if err := p.orders.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hold order for review")
	}

	err := p.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderReviewRequired,
		AggregateType: enums.AggregateSalesOrder,
		AggregateID:   order.ID,
		Data: outbox.OrderReviewRequiredEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			Reason:         reason,
			GatewayStatus:  n.TransactionStatus,
			GrossAmount:    n.GrossAmount,
			ExpectedAmount: expected,
		},
		OccurredAt: now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("emit order.review_required: %w", err)
	}
	result.ReviewRequired = true
	result.ReviewReason = reason
	return result, nil
}

// transitionAllowed keeps success terminal and stops a failed order from
// reopening. A success after failure is still applied because money moved.
func transitionAllowed(current, next enums.PaymentStatus) bool {
	switch current {
	case enums.PaymentStatusSuccess:
		return next == enums.PaymentStatusSuccess
	case enums.PaymentStatusFailed:
		return next == enums.PaymentStatusFailed || next == enums.PaymentStatusSuccess
	default:
		return true
	}
}

func parseGrossAmount(value string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

func settlementMeta(n Notification, fallbackCurrency string) invoices.Settlement {
	currency := n.Currency
	if currency == "" {
		currency = fallbackCurrency
	}
	return invoices.Settlement{
		TransactionID:   optional(n.TransactionID),
		TransactionTime: parseGatewayTime(n.TransactionTime),
		SettlementTime:  parseGatewayTime(n.SettlementTime),
		PaymentType:     optional(n.PaymentType),
		Issuer:          optional(n.Issuer),
		Acquirer:        optional(n.Acquirer),
		Currency:        currency,
	}
}
