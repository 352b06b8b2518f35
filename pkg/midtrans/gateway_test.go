package midtrans

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	midtransgo "github.com/midtrans/midtrans-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/commerce-backend/pkg/config"
)

func sampleCharge() ChargeRequest {
	return ChargeRequest{
		OrderNumber:   "ORDFE-001-26100001",
		GrossAmount:   decimal.RequireFromString("212000.00"),
		TaxAmount:     decimal.RequireFromString("22000.00"),
		DiscountTotal: decimal.RequireFromString("10000.00"),
		Customer:      Customer{Name: "Siti Rahma", Email: "siti@example.com", Phone: "+6281234567890"},
		Items: []LineItem{
			{ID: "p-1", Name: "UTBK Intensive", UnitPrice: decimal.NewFromInt(100000), Quantity: 2},
		},
		StartTime: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Validity:  24 * time.Hour,
	}
}

func TestBuildRequestBalancesItems(t *testing.T) {
	req, err := BuildRequest(sampleCharge())
	require.NoError(t, err)

	assert.Equal(t, "ORDFE-001-26100001", req.TransactionDetails.OrderID)
	assert.EqualValues(t, 212000, req.TransactionDetails.GrossAmt)
	require.NotNil(t, req.Items)

	var sum int64
	for _, item := range *req.Items {
		sum += item.Price * int64(item.Qty)
	}
	assert.EqualValues(t, 212000, sum)
	require.NotNil(t, req.Expiry)
	assert.EqualValues(t, 1440, req.Expiry.Duration)
	assert.Equal(t, "2026-10-18 09:00:00 +0000", req.Expiry.StartTime)
}

func TestBuildRequestAddsRoundingLine(t *testing.T) {
	charge := sampleCharge()
	charge.GrossAmount = decimal.RequireFromString("212000.50")
	req, err := BuildRequest(charge)
	require.NoError(t, err)

	assert.EqualValues(t, 212001, req.TransactionDetails.GrossAmt)
	items := *req.Items
	last := items[len(items)-1]
	assert.Equal(t, "ROUNDING", last.ID)
	assert.EqualValues(t, 1, last.Price)
}

func TestBuildRequestRejectsInvalid(t *testing.T) {
	charge := sampleCharge()
	charge.OrderNumber = ""
	_, err := BuildRequest(charge)
	assert.Error(t, err)

	charge = sampleCharge()
	charge.GrossAmount = decimal.Zero
	_, err = BuildRequest(charge)
	assert.Error(t, err)
}

func TestCreateTransactionAgainstStubServer(t *testing.T) {
	var gotOrderID string
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/transactions") {
			http.NotFound(w, r)
			return
		}
		gotUser, _, _ = r.BasicAuth()
		var body struct {
			TransactionDetails struct {
				OrderID string `json:"order_id"`
			} `json:"transaction_details"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotOrderID = body.TransactionDetails.OrderID
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"snap-token-1","redirect_url":"https://app.sandbox.midtrans.com/snap/v4/redirection/snap-token-1"}`))
	}))
	defer srv.Close()

	gw, err := NewGateway(config.MidtransConfig{ServerKey: "SB-Mid-server-test", Env: "sandbox", BaseURL: srv.URL})
	require.NoError(t, err)

	handle, err := gw.CreateTransaction(context.Background(), sampleCharge())
	require.NoError(t, err)
	assert.Equal(t, "snap-token-1", handle.Token)
	assert.Contains(t, handle.RedirectURL, "snap-token-1")
	assert.Equal(t, "ORDFE-001-26100001", gotOrderID)
	assert.Equal(t, "SB-Mid-server-test", gotUser)
}

func TestCreateTransactionFailures(t *testing.T) {
	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_messages":["Access denied"]}`))
	}))
	defer denied.Close()

	gw, err := NewGateway(config.MidtransConfig{ServerKey: "bad", BaseURL: denied.URL})
	require.NoError(t, err)
	_, err = gw.CreateTransaction(context.Background(), sampleCharge())
	assert.Error(t, err)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer empty.Close()

	gw, err = NewGateway(config.MidtransConfig{ServerKey: "key", BaseURL: empty.URL})
	require.NoError(t, err)
	_, err = gw.CreateTransaction(context.Background(), sampleCharge())
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestTruncateKeepsWholeRunes(t *testing.T) {
	assert.Equal(t, "UTBK", truncate("UTBK", 10))
	assert.Equal(t, "Persiapan", truncate("Persiapan UTBK", 9))

	name := strings.Repeat("é", 60)
	got := truncate(name, maxItemNameLen)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxItemNameLen, utf8.RuneCountInString(got))

	req := sampleCharge()
	req.Items[0].Name = "Kelas 日本語 " + strings.Repeat("試験", 30)
	snapReq, err := BuildRequest(req)
	require.NoError(t, err)
	for _, item := range *snapReq.Items {
		assert.True(t, utf8.ValidString(item.Name), item.Name)
		assert.LessOrEqual(t, utf8.RuneCountInString(item.Name), maxItemNameLen)
	}
}

func TestNewGatewayAlwaysBoundsHTTPCalls(t *testing.T) {
	gw, err := NewGateway(config.MidtransConfig{ServerKey: "k"})
	require.NoError(t, err)
	impl, ok := gw.client.HttpClient.(*midtransgo.HttpClientImplementation)
	require.True(t, ok)
	assert.Equal(t, defaultTimeout, impl.HttpClient.Timeout)
	assert.NotSame(t, midtransgo.DefaultGoHttpClient, impl.HttpClient)

	gw, err = NewGateway(config.MidtransConfig{ServerKey: "k", Timeout: 5 * time.Second})
	require.NoError(t, err)
	impl = gw.client.HttpClient.(*midtransgo.HttpClientImplementation)
	assert.Equal(t, 5*time.Second, impl.HttpClient.Timeout)
}

func TestCreateTransactionTimesOut(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	gw, err := NewGateway(config.MidtransConfig{ServerKey: "k", BaseURL: slow.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	start := time.Now()
	_, err = gw.CreateTransaction(context.Background(), sampleCharge())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	gw, err = NewGateway(config.MidtransConfig{ServerKey: "k", BaseURL: slow.URL})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gw.CreateTransaction(ctx, sampleCharge())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestNewGatewayValidation(t *testing.T) {
	_, err := NewGateway(config.MidtransConfig{})
	assert.Error(t, err)
	_, err = NewGateway(config.MidtransConfig{ServerKey: "k", Env: "staging"})
	assert.Error(t, err)
	_, err = NewGateway(config.MidtransConfig{ServerKey: "k", BaseURL: "::not a url"})
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	sig := SignatureKey("ORDFE-001-26100001", "200", "212000.00", "server-key")
	assert.Len(t, sig, 128)
	assert.True(t, VerifySignature(strings.ToUpper(sig), "ORDFE-001-26100001", "200", "212000.00", "server-key"))
	assert.False(t, VerifySignature(sig, "ORDFE-001-26100001", "200", "212000.00", "other-key"))
}
