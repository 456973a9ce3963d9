package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardrobe/internal/types"
)

type stubCustomerLookup struct {
	customerID string
	err        error
}

func (s *stubCustomerLookup) GetStripeCustomerID(_ context.Context, _ string) (string, error) {
	return s.customerID, s.err
}

func newTestStripeClient(t *testing.T, handler http.HandlerFunc, customers CustomerLookup) *StripeClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewStripeClient(server.Client(), customers, StripeClientConfig{
		SecretKey: types.SecretString("sk_test_123"),
		BaseURL:   server.URL,
	})
}

func TestStripeClient_CreatePortalSession(t *testing.T) {
	var gotAuth, gotCustomer, gotReturnURL string
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/billing_portal/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotCustomer = r.FormValue("customer")
		gotReturnURL = r.FormValue("return_url")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"bps_1","url":"https://billing.stripe.com/p/session_abc"}`))
	}, &stubCustomerLookup{customerID: "cus_123"})

	portalURL, err := client.CreatePortalSession(context.Background(), "user_1", "https://app.example.com/settings/billing")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/p/session_abc", portalURL)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, "cus_123", gotCustomer)
	assert.Equal(t, "https://app.example.com/settings/billing", gotReturnURL)
}

func TestStripeClient_CreatePortalSession_NoBillingAccount(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach Stripe without a customer id")
	}, &stubCustomerLookup{customerID: ""})

	_, err := client.CreatePortalSession(context.Background(), "user_1", "https://app.example.com/billing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundBilling, appErr.Code)
}

func TestStripeClient_ListInvoices_PaginatesWithCursor(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/invoices", r.URL.Path)
		assert.Equal(t, "cus_123", r.URL.Query().Get("customer"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "in_prev", r.URL.Query().Get("starting_after"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id":"in_1","amount_due":900,"status":"paid","period_start":1767225600,"period_end":1769904000,
				 "invoice_pdf":"https://files.stripe.com/in_1.pdf","status_transitions":{"paid_at":1767230000}},
				{"id":"in_2","amount_due":900,"status":"open","period_start":1769904000,"period_end":1772323200,
				 "status_transitions":{}}
			],
			"has_more": true
		}`))
	}, &stubCustomerLookup{customerID: "cus_123"})

	invoices, page, err := client.ListInvoices(context.Background(), "user_1",
		types.ListInvoicesParams{Limit: 2, Cursor: "in_prev"})
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	assert.Equal(t, int64(900), invoices[0].AmountCents)
	assert.Equal(t, "paid", invoices[0].Status)
	require.NotNil(t, invoices[0].PaidAt)
	assert.Nil(t, invoices[1].PaidAt)

	assert.True(t, page.HasMore)
	assert.Equal(t, "in_2", page.NextCursor)
}

func TestStripeClient_ListInvoices_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"too many requests"}}`))
	}))
	t.Cleanup(server.Close)

	base := NewBaseClient(server.Client(), "stripe-test", DefaultRetryPolicy(), "Wardrobe/1.0",
		WithSleepFunc(func(time.Duration) {}))
	client := NewStripeClientWithBase(base, &stubCustomerLookup{customerID: "cus_123"}, StripeClientConfig{
		SecretKey: types.SecretString("sk_test_123"),
		BaseURL:   server.URL,
	})

	_, _, err := client.ListInvoices(context.Background(), "user_1", types.ListInvoicesParams{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRateLimit, appErr.Code)
}

func TestPlanForPriceID(t *testing.T) {
	tests := []struct {
		priceID  string
		code     types.PlanCode
		interval types.PlanInterval
	}{
		{"price_plus_month", types.PlanPlus, types.IntervalMonth},
		{"price_plus_year", types.PlanPlus, types.IntervalYear},
		{"price_pro_month", types.PlanPro, types.IntervalMonth},
		{"price_pro_year", types.PlanPro, types.IntervalYear},
		// Unknown prices fail closed to free.
		{"price_unknown", types.PlanFree, types.IntervalMonth},
		{"", types.PlanFree, types.IntervalMonth},
	}
	for _, tt := range tests {
		code, interval := PlanForPriceID(tt.priceID)
		assert.Equal(t, tt.code, code, tt.priceID)
		assert.Equal(t, tt.interval, interval, tt.priceID)
	}
}
