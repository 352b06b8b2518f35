// Package invoices issues the single invoice of a settled order.
package invoices

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/edutrack/commerce-backend/pkg/db"
	"github.com/edutrack/commerce-backend/pkg/db/models"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
)

type invoiceNumberer interface {
	NextInvoiceNumber(ctx context.Context, tx *gorm.DB, at time.Time) (string, error)
}

// Settlement carries the gateway metadata copied onto the invoice. Amount is
// the gross amount the gateway reported as paid.
type Settlement struct {
	Amount          decimal.Decimal
	TransactionID   *string
	TransactionTime *time.Time
	SettlementTime  *time.Time
	PaymentType     *string
	Issuer          *string
	Acquirer        *string
	Currency        string
}

type Issuer struct {
	sequencer invoiceNumberer
	now       func() time.Time
}

func NewIssuer(sequencer invoiceNumberer) (*Issuer, error) {
	if sequencer == nil {
		return nil, errors.New("invoice sequencer required")
	}
	return &Issuer{sequencer: sequencer, now: func() time.Time { return time.Now().UTC() }}, nil
}

// FindByOrder returns the invoice of an order or nil when none exists.
func (i *Issuer) FindByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// Issue creates the order's invoice unless one already exists. created is
// false when the existing invoice is returned. Callers hold the order row
// lock so concurrent deliveries serialize before the existence check.
func (i *Issuer) Issue(ctx context.Context, tx *gorm.DB, order *models.SalesOrderHeader, meta Settlement) (invoice *models.Invoice, created bool, err error) {
	if tx == nil || order == nil {
		return nil, false, errors.New("transaction and order required")
	}
	existing, err := i.FindByOrder(ctx, tx, order.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check invoice existence")
	}
	if existing != nil {
		return existing, false, nil
	}

	if !meta.Amount.IsPositive() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "settled amount must be positive").
			WithDetails(map[string]any{"order_number": order.OrderNumber, "amount": meta.Amount.String()})
	}

	now := i.now()
	number, err := i.sequencer.NextInvoiceNumber(ctx, tx, now)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate invoice number")
	}
	currency := meta.Currency
	if currency == "" {
		currency = order.Currency
	}
	invoice = &models.Invoice{
		InvoiceNumber:   number,
		OrderID:         order.ID,
		UserID:          order.UserID,
		Amount:          meta.Amount,
		Currency:        currency,
		TransactionID:   meta.TransactionID,
		TransactionTime: meta.TransactionTime,
		SettlementTime:  meta.SettlementTime,
		PaymentType:     meta.PaymentType,
		Issuer:          meta.Issuer,
		Acquirer:        meta.Acquirer,
		IssuedAt:        now,
	}
	if err := tx.WithContext(ctx).Create(invoice).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "invoice already issued for order")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
	}
	return invoice, true, nil
}
