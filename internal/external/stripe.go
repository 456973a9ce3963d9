package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wardrobe/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// Stripe webhook event types the service reacts to.
const (
	EventStripeSubCreated    = "customer.subscription.created"
	EventStripeSubUpdated    = "customer.subscription.updated"
	EventStripeSubDeleted    = "customer.subscription.deleted"
	EventStripePaymentFailed = "invoice.payment_failed"
)

// CustomerLookup resolves a user into the Stripe customer ID stored with the
// cached subscription record. Empty means the user has no billing account.
type CustomerLookup interface {
	GetStripeCustomerID(ctx context.Context, userID string) (string, error)
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient makes direct HTTP calls to the Stripe REST API through
// BaseClient, so every request inherits the circuit breaker, retries, and
// error mapping. Testing against httptest servers stays straightforward.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	customers CustomerLookup
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient.
func NewStripeClient(httpClient *http.Client, customers CustomerLookup, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"stripe",
		DefaultRetryPolicy(),
		"Wardrobe/1.0",
	)

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		customers: customers,
		logger:    logger,
	}
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient, for tests that need to control retry/breaker behavior.
func NewStripeClientWithBase(base *BaseClient, customers CustomerLookup, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		customers: customers,
		logger:    logger,
	}
}

// CreatePortalSession generates a Stripe Billing Portal URL for self-serve
// subscription management.
func (s *StripeClient) CreatePortalSession(ctx context.Context, userID string, returnURL string) (string, error) {
	customerID, err := s.resolveCustomerID(ctx, userID)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	resp, err := s.doPost(ctx, "/v1/billing_portal/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreatePortalSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreatePortalSession")
	}

	var session stripePortalSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe portal session response",
			err,
		)
	}
	return session.URL, nil
}

// ListInvoices retrieves invoice history with cursor-based pagination, mapping
// the cursor to Stripe's starting_after parameter.
func (s *StripeClient) ListInvoices(ctx context.Context, userID string, params types.ListInvoicesParams) ([]*types.Invoice, types.PageInfo, error) {
	customerID, err := s.resolveCustomerID(ctx, userID)
	if err != nil {
		return nil, types.PageInfo{}, err
	}

	queryParams := url.Values{}
	queryParams.Set("customer", customerID)

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	queryParams.Set("limit", fmt.Sprintf("%d", limit))
	if params.Cursor != "" {
		queryParams.Set("starting_after", params.Cursor)
	}

	resp, err := s.doGet(ctx, "/v1/invoices", queryParams)
	if err != nil {
		return nil, types.PageInfo{}, s.wrapStripeError("ListInvoices", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.PageInfo{}, s.handleErrorResponse(resp, "ListInvoices")
	}

	var listResp stripeInvoiceList
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe invoices response",
			err,
		)
	}

	invoices := make([]*types.Invoice, 0, len(listResp.Data))
	for _, si := range listResp.Data {
		invoices = append(invoices, mapStripeInvoice(&si))
	}

	pageInfo := types.PageInfo{HasMore: listResp.HasMore}
	if listResp.HasMore && len(listResp.Data) > 0 {
		pageInfo.NextCursor = listResp.Data[len(listResp.Data)-1].ID
	}
	return invoices, pageInfo, nil
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)
	return s.base.Do(req)
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)
	return s.base.Do(req)
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// resolveCustomerID fetches the Stripe customer ID for the user from the
// local subscription record.
func (s *StripeClient) resolveCustomerID(ctx context.Context, userID string) (string, error) {
	customerID, err := s.customers.GetStripeCustomerID(ctx, userID)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		return "", types.NewAppError(
			types.ErrCodeNotFoundBilling,
			fmt.Sprintf("user %s has no billing account", userID),
			nil,
		)
	}
	return customerID, nil
}

// ---------------------------------------------------------------------------
// Error handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleErrorResponse reads a Stripe error body and maps it to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimit,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundBilling,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Error.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with operation context.
// AppErrors from BaseClient already carry the right code and pass through.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe response types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeInvoice struct {
	ID                string                  `json:"id"`
	AmountDue         int64                   `json:"amount_due"`
	Status            string                  `json:"status"`
	PeriodStart       int64                   `json:"period_start"`
	PeriodEnd         int64                   `json:"period_end"`
	InvoicePDF        string                  `json:"invoice_pdf"`
	StatusTransitions stripeStatusTransitions `json:"status_transitions"`
}

type stripeStatusTransitions struct {
	PaidAt int64 `json:"paid_at"`
}

type stripeInvoiceList struct {
	Data    []stripeInvoice `json:"data"`
	HasMore bool            `json:"has_more"`
}

// mapStripeInvoice converts a Stripe invoice to a domain types.Invoice.
func mapStripeInvoice(si *stripeInvoice) *types.Invoice {
	inv := &types.Invoice{
		ID:          si.ID,
		AmountCents: si.AmountDue,
		Status:      si.Status,
		PeriodStart: time.Unix(si.PeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(si.PeriodEnd, 0).UTC(),
		PDFURL:      si.InvoicePDF,
	}
	if si.StatusTransitions.PaidAt > 0 {
		paidAt := time.Unix(si.StatusTransitions.PaidAt, 0).UTC()
		inv.PaidAt = &paidAt
	}
	return inv
}

// ---------------------------------------------------------------------------
// Price ID <-> plan mapping
// ---------------------------------------------------------------------------

// planPrice identifies one sellable price point.
type planPrice struct {
	Code     types.PlanCode
	Interval types.PlanInterval
}

// priceToPlan maps Stripe Price IDs to plan code and interval. Populated from
// configuration at startup in production; the defaults serve tests and local
// development.
var priceToPlan = map[string]planPrice{
	"price_plus_month": {types.PlanPlus, types.IntervalMonth},
	"price_plus_year":  {types.PlanPlus, types.IntervalYear},
	"price_pro_month":  {types.PlanPro, types.IntervalMonth},
	"price_pro_year":   {types.PlanPro, types.IntervalYear},
}

// PlanForPriceID returns the plan for a Stripe price ID. Unknown price IDs
// map to the free plan: a misconfigured price must never grant paid access.
func PlanForPriceID(priceID string) (types.PlanCode, types.PlanInterval) {
	if p, ok := priceToPlan[priceID]; ok {
		return p.Code, p.Interval
	}
	return types.PlanFree, types.IntervalMonth
}
