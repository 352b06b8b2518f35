package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edutrack/commerce-backend/pkg/db/models"
	"github.com/edutrack/commerce-backend/pkg/enums"
	"github.com/edutrack/commerce-backend/pkg/pagination"
)

// OrderItem is one priced line of an order as returned to its owner.
type OrderItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// OrderSummary is the settlement summary of one order.
type OrderSummary struct {
	ID                 uuid.UUID           `json:"id"`
	OrderNumber        string              `json:"order_number"`
	Status             enums.OrderStatus   `json:"status"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	Currency           string              `json:"currency"`
	Subtotal           decimal.Decimal     `json:"subtotal"`
	DiscountTotal      decimal.Decimal     `json:"discount_total"`
	TaxTotal           decimal.Decimal     `json:"tax_total"`
	GrandTotal         decimal.Decimal     `json:"grand_total"`
	PaymentToken       *string             `json:"payment_token,omitempty"`
	PaymentRedirectURL *string             `json:"payment_redirect_url,omitempty"`
	InvoiceNumber      *string             `json:"invoice_number,omitempty"`
	ExpiredAt          time.Time           `json:"expired_at"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	Items              []OrderItem         `json:"items"`
}

// OrderList is one page of a user's order history.
type OrderList struct {
	Orders []OrderSummary `json:"orders"`
	pagination.Meta
}

func toItems(items []models.SalesOrderItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			Discount:    item.Discount,
			Tax:         item.Tax,
			Total:       item.Total,
		})
	}
	return out
}

// Summarize builds the owner-facing view of a header.
func Summarize(header models.SalesOrderHeader, invoiceNumber *string) OrderSummary {
	return OrderSummary{
		ID:                 header.ID,
		OrderNumber:        header.OrderNumber,
		Status:             header.Status,
		PaymentStatus:      header.PaymentStatus,
		Currency:           header.Currency,
		Subtotal:           header.Subtotal,
		DiscountTotal:      header.DiscountTotal,
		TaxTotal:           header.TaxTotal,
		GrandTotal:         header.GrandTotal,
		PaymentToken:       header.PaymentToken,
		PaymentRedirectURL: header.PaymentRedirectURL,
		InvoiceNumber:      invoiceNumber,
		ExpiredAt:          header.ExpiredAt,
		PaidAt:             header.PaidAt,
		CreatedAt:          header.CreatedAt,
		Items:              toItems(header.Items),
	}
}
