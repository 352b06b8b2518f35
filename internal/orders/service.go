package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
	"github.com/edutrack/commerce-backend/pkg/pagination"
)

// Service answers order queries on behalf of the order's owner.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID, orderNumber string) (*OrderSummary, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

// Get returns the summary of one order. Unknown numbers are NOT_FOUND and
// orders of another user are FORBIDDEN.
func (s *service) Get(ctx context.Context, userID uuid.UUID, orderNumber string) (*OrderSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}

	header, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if header.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}

	invoices, err := s.repo.InvoiceNumbers(ctx, []uuid.UUID{header.ID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	summary := Summarize(*header, invoiceRef(invoices, header.ID))
	return &summary, nil
}

// List returns one page of the user's order history, newest first.
func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	params = pagination.Normalize(params)

	headers, total, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	ids := make([]uuid.UUID, 0, len(headers))
	for _, header := range headers {
		ids = append(ids, header.ID)
	}
	invoices, err := s.repo.InvoiceNumbers(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoices")
	}

	list := &OrderList{Orders: make([]OrderSummary, 0, len(headers)), Meta: pagination.NewMeta(params, total)}
	for _, header := range headers {
		list.Orders = append(list.Orders, Summarize(header, invoiceRef(invoices, header.ID)))
	}
	return list, nil
}

func invoiceRef(numbers map[uuid.UUID]string, orderID uuid.UUID) *string {
	number, ok := numbers[orderID]
	if !ok {
		return nil
	}
	return &number
}
