// Package midtrans adapts Midtrans Snap to the checkout payment port.
package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	midtransgo "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edutrack/commerce-backend/pkg/config"
)

const (
	tracerName       = "github.com/edutrack/commerce-backend/pkg/midtrans"
	expiryTimeLayout = "2006-01-02 15:04:05 -0700"
	maxItemNameLen   = 50
	defaultTimeout   = 30 * time.Second
)

// ErrMalformedResponse is returned when Snap answers without a token or redirect URL.
var ErrMalformedResponse = errors.New("midtrans returned no payment token")

// Customer carries the buyer contact fields sent to Snap.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// LineItem is one purchased product as shown on the Snap page.
type LineItem struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// ChargeRequest initiates payment for one order. OrderNumber doubles as the
// gateway reference and idempotency key.
type ChargeRequest struct {
	OrderNumber   string
	GrossAmount   decimal.Decimal
	TaxAmount     decimal.Decimal
	DiscountTotal decimal.Decimal
	Customer      Customer
	Items         []LineItem
	StartTime     time.Time
	Validity      time.Duration
}

// PaymentHandle lets the buyer resume payment.
type PaymentHandle struct {
	Token       string
	RedirectURL string
}

// Gateway creates Snap transactions.
type Gateway struct {
	client snap.Client
	tracer trace.Tracer
}

// NewGateway authenticates with the server key of the configured environment.
// A non-empty BaseURL redirects Snap calls, for example to a stub server.
// Every call is bounded by cfg.Timeout, or 30s when unset.
func NewGateway(cfg config.MidtransConfig) (*Gateway, error) {
	if strings.TrimSpace(cfg.ServerKey) == "" {
		return nil, errors.New("midtrans server key is required")
	}
	env := midtransgo.Sandbox
	switch cfg.Environment() {
	case config.MidtransSandbox:
	case config.MidtransProduction:
		env = midtransgo.Production
	default:
		return nil, fmt.Errorf("unknown midtrans environment %q", cfg.Env)
	}

	g := &Gateway{tracer: otel.Tracer(tracerName)}
	g.client.New(cfg.ServerKey, env)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport
	if cfg.BaseURL != "" {
		target, err := url.Parse(cfg.BaseURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid midtrans base url %q", cfg.BaseURL)
		}
		transport = rewriteTransport{target: target, next: http.DefaultTransport}
	}
	impl, ok := g.client.HttpClient.(*midtransgo.HttpClientImplementation)
	if !ok {
		return nil, errors.New("midtrans http client cannot be configured")
	}
	// Replaces the library's shared default client.
	impl.HttpClient = &http.Client{Timeout: timeout, Transport: transport}
	return g, nil
}

// CreateTransaction sends the Snap request. Any gateway error or a response
// without token is terminal for the current checkout attempt. The Snap client
// takes no context, so a cancelled ctx returns early while the request runs
// out on the client timeout.
func (g *Gateway) CreateTransaction(ctx context.Context, req ChargeRequest) (*PaymentHandle, error) {
	_, span := g.tracer.Start(ctx, "midtrans.CreateTransaction", trace.WithAttributes(
		attribute.String("order.number", req.OrderNumber),
		attribute.String("order.gross_amount", req.GrossAmount.String()),
	))
	defer span.End()

	snapReq, err := BuildRequest(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	type snapResult struct {
		resp *snap.Response
		err  *midtransgo.Error
	}
	done := make(chan snapResult, 1)
	go func() {
		resp, err := g.client.CreateTransaction(snapReq)
		done <- snapResult{resp: resp, err: err}
	}()

	var resp *snap.Response
	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "snap call abandoned")
		return nil, fmt.Errorf("create snap transaction: %w", ctx.Err())
	case out := <-done:
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, "snap call failed")
			return nil, fmt.Errorf("create snap transaction: %w", out.err)
		}
		resp = out.resp
	}
	if resp == nil || resp.Token == "" || resp.RedirectURL == "" {
		span.SetStatus(codes.Error, "malformed response")
		return nil, ErrMalformedResponse
	}
	span.SetStatus(codes.Ok, "")
	return &PaymentHandle{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// GrossAmount rounds a total half-up to whole rupiah.
func GrossAmount(total decimal.Decimal) int64 {
	return total.Round(0).IntPart()
}

// BuildRequest maps a charge onto the Snap payload. Item prices are whole
// rupiah, so tax, promo and a rounding line keep the item sum equal to the
// gross amount.
func BuildRequest(req ChargeRequest) (*snap.Request, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return nil, errors.New("order number is required")
	}
	gross := GrossAmount(req.GrossAmount)
	if gross <= 0 {
		return nil, fmt.Errorf("gross amount must be positive, got %s", req.GrossAmount)
	}

	items := make([]midtransgo.ItemDetails, 0, len(req.Items)+3)
	var sum int64
	for _, item := range req.Items {
		price := GrossAmount(item.UnitPrice)
		items = append(items, midtransgo.ItemDetails{
			ID:    item.ID,
			Name:  truncate(item.Name, maxItemNameLen),
			Price: price,
			Qty:   int32(item.Quantity),
		})
		sum += price * int64(item.Quantity)
	}
	if tax := GrossAmount(req.TaxAmount); tax != 0 {
		items = append(items, midtransgo.ItemDetails{ID: "TAX", Name: "Tax", Price: tax, Qty: 1})
		sum += tax
	}
	if promo := GrossAmount(req.DiscountTotal); promo != 0 {
		items = append(items, midtransgo.ItemDetails{ID: "PROMO", Name: "Promo discount", Price: -promo, Qty: 1})
		sum -= promo
	}
	if diff := gross - sum; diff != 0 {
		items = append(items, midtransgo.ItemDetails{ID: "ROUNDING", Name: "Rounding", Price: diff, Qty: 1})
	}

	snapReq := &snap.Request{
		TransactionDetails: midtransgo.TransactionDetails{
			OrderID:  req.OrderNumber,
			GrossAmt: gross,
		},
		CustomerDetail: &midtransgo.CustomerDetails{
			FName: req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Items: &items,
	}
	if req.Validity > 0 {
		start := req.StartTime
		if start.IsZero() {
			start = time.Now()
		}
		snapReq.Expiry = &snap.ExpiryDetails{
			StartTime: start.Format(expiryTimeLayout),
			Unit:      "minute",
			Duration:  int64(req.Validity / time.Minute),
		}
	}
	return snapReq, nil
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

type rewriteTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (t rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	clone := r.Clone(r.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	clone.Host = t.target.Host
	return t.next.RoundTrip(clone)
}
