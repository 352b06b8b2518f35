// Package checkout turns selected cart lines into a reserved, payable order.
//
// A checkout runs as a saga. The first transaction creates the order,
// reserves stock, clears the purchased cart lines and queues order.created.
// The payment gateway is then called with no transaction open. A second
// transaction stores the payment handle. When the gateway fails, a
// compensating transaction expires the order, restores stock and puts the
// lines back in the cart.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/internal/cart"
	"github.com/edutrack/commerce-backend/internal/inventory"
	"github.com/edutrack/commerce-backend/internal/orders"
	"github.com/edutrack/commerce-backend/pkg/config"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/metrics"
	"github.com/edutrack/commerce-backend/pkg/midtrans"
	"github.com/edutrack/commerce-backend/pkg/outbox"
)

const (
	tracerName = "github.com/edutrack/commerce-backend/internal/checkout"
	currency   = "IDR"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type snapshotLoader interface {
	Load(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) ([]cart.Line, error)
}

type orderNumberer interface {
	NextOrderNumber(ctx context.Context, tx *gorm.DB, at time.Time) (string, error)
}

type stockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, items []inventory.Item) error
	Restore(ctx context.Context, tx *gorm.DB, orderNumber string) (bool, error)
}

type buyerLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type checkoutRecorder interface {
	IncCheckout(outcome string)
}

// PaymentGateway initiates payment for a committed order.
type PaymentGateway interface {
	CreateTransaction(ctx context.Context, req midtrans.ChargeRequest) (*midtrans.PaymentHandle, error)
}

// Input is one checkout request.
type Input struct {
	UserID     uuid.UUID
	ProductIDs []uuid.UUID
	Promo      decimal.Decimal
}

type Params struct {
	Config    config.CheckoutConfig
	Logger    *logger.Logger
	Tx        txRunner
	Orders    orders.Repository
	Snapshots snapshotLoader
	Sequencer orderNumberer
	Ledger    stockLedger
	Users     buyerLookup
	Gateway   PaymentGateway
	Outbox    outbox.Emitter
	Metrics   checkoutRecorder
}

type Service struct {
	cfg       config.CheckoutConfig
	taxRate   decimal.Decimal
	logg      *logger.Logger
	tx        txRunner
	orders    orders.Repository
	snapshots snapshotLoader
	sequencer orderNumberer
	ledger    stockLedger
	users     buyerLookup
	gateway   PaymentGateway
	outbox    outbox.Emitter
	metrics   checkoutRecorder
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Snapshots == nil:
		return nil, fmt.Errorf("cart snapshot loader required")
	case p.Sequencer == nil:
		return nil, fmt.Errorf("order sequencer required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("stock ledger required")
	case p.Users == nil:
		return nil, fmt.Errorf("user lookup required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := p.Config.OrderTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	p.Config.OrderTTL = ttl
	return &Service{
		cfg:       p.Config,
		taxRate:   TaxRate(p.Config.TaxRatePercent),
		logg:      logg,
		tx:        p.Tx,
		orders:    p.Orders,
		snapshots: p.Snapshots,
		sequencer: p.Sequencer,
		ledger:    p.Ledger,
		users:     p.Users,
		gateway:   p.Gateway,
		outbox:    p.Outbox,
		metrics:   p.Metrics,
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Checkout runs the saga and returns the priced order with its payment handle.
func (s *Service) Checkout(ctx context.Context, in Input) (result *orders.OrderSummary, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(
		attribute.String("user.id", in.UserID.String()),
		attribute.Int("checkout.selected", len(in.ProductIDs)),
	))
	defer func() {
		s.record(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(pkgerrors.CodeOf(err)))
		}
		span.End()
	}()

	productIDs, err := validate(in)
	if err != nil {
		return nil, err
	}

	buyer, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load buyer")
	}

	header, cartID, err := s.createOrder(ctx, in, productIDs)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderNumber(ctx, header.OrderNumber)
	span.SetAttributes(attribute.String("order.number", header.OrderNumber))

	handle, gatewayErr := s.initiatePayment(ctx, header, buyer)
	if gatewayErr != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", gatewayErr.Error()), "payment gateway failed; compensating checkout")
		s.compensate(context.WithoutCancel(ctx), header, cartID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, gatewayErr, "payment gateway unavailable").
			WithDetails(map[string]any{"order_number": header.OrderNumber})
	}

	if err := s.persistHandle(ctx, header, handle); err != nil {
		return nil, err
	}
	header.PaymentToken = &handle.Token
	header.PaymentRedirectURL = &handle.RedirectURL

	s.logg.Info(s.logg.WithUserID(ctx, in.UserID.String()), "checkout completed")
	summary := orders.Summarize(*header, nil)
	return &summary, nil
}

func validate(in Input) ([]uuid.UUID, error) {
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if in.Promo.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo must not be negative")
	}
	seen := make(map[uuid.UUID]struct{}, len(in.ProductIDs))
	ids := make([]uuid.UUID, 0, len(in.ProductIDs))
	for _, id := range in.ProductIDs {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product ids must be valid")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "select at least one product")
	}
	return ids, nil
}

// createOrder is the first saga transaction.
func (s *Service) createOrder(ctx context.Context, in Input, productIDs []uuid.UUID) (*models.SalesOrderHeader, uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.create_order")
	defer span.End()

	var header *models.SalesOrderHeader
	var cartID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lines, err := s.snapshots.Load(ctx, tx, in.UserID, productIDs)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "none of the selected products are in the cart")
		}
		cartID = lines[0].CartID

		totals, err := ComputeTotals(lines, in.Promo, s.taxRate)
		if err != nil {
			return err
		}

		now := s.now()
		number, err := s.sequencer.NextOrderNumber(ctx, tx, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate order number")
		}

		header = buildHeader(number, in.UserID, totals, now.Add(s.cfg.OrderTTL))
		if err := s.orders.WithTx(tx).Create(ctx, header); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		items := make([]inventory.Item, 0, len(lines))
		purchased := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			items = append(items, inventory.Item{ProductID: line.ProductID, Quantity: line.Quantity})
			purchased = append(purchased, line.ProductID)
		}
		if err := s.ledger.Reserve(ctx, tx, items); err != nil {
			return err
		}

		carts := cart.NewRepository(tx)
		if _, err := carts.RemoveProducts(ctx, cartID, purchased); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear purchased cart lines")
		}
		if err := carts.Touch(ctx, cartID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "touch cart")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateSalesOrder,
			AggregateID:   header.ID,
			Actor:         &outbox.ActorRef{UserID: in.UserID},
			Data: outbox.OrderCreatedEvent{
				OrderID:     header.ID,
				OrderNumber: header.OrderNumber,
				UserID:      in.UserID,
				GrandTotal:  header.GrandTotal,
				ExpiredAt:   header.ExpiredAt,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		return nil, uuid.Nil, err
	}
	return header, cartID, nil
}

func buildHeader(number string, userID uuid.UUID, totals Totals, expiresAt time.Time) *models.SalesOrderHeader {
	items := make([]models.SalesOrderItem, 0, len(totals.Lines))
	for _, line := range totals.Lines {
		items = append(items, models.SalesOrderItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
			Discount:    line.Discount,
			Tax:         line.Tax,
			Total:       line.Total,
		})
	}
	return &models.SalesOrderHeader{
		OrderNumber:   number,
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		Currency:      currency,
		Subtotal:      totals.Subtotal,
		DiscountTotal: totals.DiscountTotal,
		TaxTotal:      totals.TaxTotal,
		GrandTotal:    totals.GrandTotal,
		ExpiredAt:     expiresAt,
		Items:         items,
	}
}

func (s *Service) initiatePayment(ctx context.Context, header *models.SalesOrderHeader, buyer *models.User) (*midtrans.PaymentHandle, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.initiate_payment")
	defer span.End()

	items := make([]midtrans.LineItem, 0, len(header.Items))
	for _, item := range header.Items {
		items = append(items, midtrans.LineItem{
			ID:        item.ProductID.String(),
			Name:      item.ProductName,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	customer := midtrans.Customer{Name: buyer.Name, Email: buyer.Email}
	if buyer.Phone != nil {
		customer.Phone = *buyer.Phone
	}

	handle, err := s.gateway.CreateTransaction(ctx, midtrans.ChargeRequest{
		OrderNumber:   header.OrderNumber,
		GrossAmount:   header.GrandTotal,
		TaxAmount:     header.TaxTotal,
		DiscountTotal: header.DiscountTotal,
		Customer:      customer,
		Items:         items,
		StartTime:     header.ExpiredAt.Add(-s.cfg.OrderTTL),
		Validity:      s.cfg.OrderTTL,
	})
	if err == nil && (handle == nil || handle.Token == "") {
		err = midtrans.ErrMalformedResponse
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway failed")
		return nil, err
	}
	return handle, nil
}

// persistHandle is the second saga transaction. The token is written once.
func (s *Service) persistHandle(ctx context.Context, header *models.SalesOrderHeader, handle *midtrans.PaymentHandle) error {
	ctx, span := s.tracer.Start(ctx, "checkout.persist_payment_handle")
	defer span.End()

	var stored bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		stored, err = s.orders.WithTx(tx).SetPaymentHandle(ctx, header.ID, handle.Token, handle.RedirectURL)
		return err
	})
	if err != nil {
		span.RecordError(err)
		s.logg.Error(ctx, "failed to persist payment handle; order will expire unpaid", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment handle")
	}
	if !stored {
		s.logg.Warn(ctx, "payment handle already present; keeping the first one")
	}
	return nil
}

// compensate undoes the first transaction after a gateway failure. When it
// fails the order stays pending without token and the expiry job restores it.
func (s *Service) compensate(ctx context.Context, header *models.SalesOrderHeader, cartID uuid.UUID) {
	ctx, span := s.tracer.Start(ctx, "checkout.compensate")
	defer span.End()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		current, err := repo.LockByNumber(ctx, header.OrderNumber)
		if err != nil {
			return err
		}
		if !current.PaymentStatus.IsOpen() || current.PaymentToken != nil {
			return nil
		}

		now := s.now()
		if err := repo.Update(ctx, current.ID, map[string]any{
			"status":         enums.OrderStatusExpired,
			"payment_status": enums.PaymentStatusFailed,
			"updated_at":     now,
		}); err != nil {
			return err
		}
		restored, err := s.ledger.Restore(ctx, tx, current.OrderNumber)
		if err != nil {
			return err
		}

		quantities := make(map[uuid.UUID]int, len(current.Items))
		for _, item := range current.Items {
			quantities[item.ProductID] += item.Quantity
		}
		if err := cart.NewRepository(tx).AddQuantities(ctx, cartID, quantities); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateSalesOrder,
			AggregateID:   current.ID,
			Data: outbox.OrderExpiredEvent{
				OrderID:       current.ID,
				OrderNumber:   current.OrderNumber,
				UserID:        current.UserID,
				ExpiredAt:     now,
				StockRestored: restored,
				Reason:        "payment_gateway_error",
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compensation failed")
		s.logg.Error(ctx, "checkout compensation failed; order left for expiry job", err)
		return
	}
	s.logg.Info(ctx, "checkout compensated")
}

func (s *Service) record(err error) {
	if s.metrics == nil {
		return
	}
	if err == nil {
		s.metrics.IncCheckout(metrics.OutcomeSuccess)
		return
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeUnauthorized:
		s.metrics.IncCheckout(metrics.OutcomeValidation)
	case pkgerrors.CodeConflict:
		s.metrics.IncCheckout(metrics.OutcomeConflict)
	case pkgerrors.CodeDependency:
		s.metrics.IncCheckout(metrics.OutcomeGatewayError)
	default:
		s.metrics.IncCheckout(metrics.OutcomeError)
	}
}
