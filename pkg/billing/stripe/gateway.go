// Package stripe implements billing.Gateway and billing.EventVerifier on top of
// the Stripe API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gorelay/pkg/billing"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	serviceName          = "stripe"
	idempotencyKeyPrefix = "gorelay-customer-"
	metadataUserID       = "user_id"
)

// Config holds the Stripe gateway options
type Config struct {
	// APIKey is the Stripe secret key (required)
	APIKey string

	// BaseURL overrides the Stripe API endpoint. Used by tests.
	BaseURL string

	// HTTPClient overrides the SDK's default client.
	HTTPClient *http.Client

	Logger  relay.Logger
	Metrics relay.Metrics
}

// Gateway implements billing.Gateway for Stripe
type Gateway struct {
	client  *stripe.Client
	logger  relay.Logger
	metrics relay.Metrics
}

var _ billing.Gateway = (*Gateway)(nil)

// NewGateway creates a Stripe gateway. The SDK's network retries are disabled:
// every relay operation performs a single upstream call.
func NewGateway(config Config) (*Gateway, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: stripe api key is required", relay.ErrConfig)
	}

	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		HTTPClient:        config.HTTPClient,
	}
	if config.BaseURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(config.BaseURL, "/"))
	}

	client := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig)))

	return &Gateway{
		client:  client,
		logger:  relay.LoggerOrNoop(config.Logger),
		metrics: relay.MetricsOrNoop(config.Metrics),
	}, nil
}

// CreateCustomer creates a customer tagged with the user id. The idempotency key
// is derived from the user id so concurrent first checkouts yield one customer.
func (g *Gateway) CreateCustomer(ctx context.Context, params billing.CustomerParams) (string, error) {
	startTime := time.Now()

	createParams := &stripe.CustomerCreateParams{
		Metadata: map[string]string{metadataUserID: params.UserID},
	}
	if params.Email != "" {
		createParams.Email = stripe.String(params.Email)
	}
	createParams.SetIdempotencyKey(idempotencyKeyPrefix + params.UserID)

	customer, err := g.client.V1Customers.Create(ctx, createParams)
	g.record("/customers", startTime, err)
	if err != nil {
		return "", upstreamError("create customer", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a subscription-mode checkout session for one
// unit of the configured price.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	startTime := time.Now()

	createParams := &stripe.CheckoutSessionCreateParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(params.CustomerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(params.UserID),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: params.UserID},
		},
	}
	if params.TrialPeriodDays > 0 {
		createParams.SubscriptionData.TrialPeriodDays = stripe.Int64(params.TrialPeriodDays)
	}

	session, err := g.client.V1CheckoutSessions.Create(ctx, createParams)
	g.record("/checkout/sessions", startTime, err)
	if err != nil {
		return "", upstreamError("create checkout session", err)
	}
	return session.ID, nil
}

// CreatePortalSession creates a billing portal session for an existing customer.
func (g *Gateway) CreatePortalSession(ctx context.Context, params billing.PortalParams) (string, error) {
	startTime := time.Now()

	session, err := g.client.V1BillingPortalSessions.Create(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(params.CustomerID),
		ReturnURL: stripe.String(params.ReturnURL),
	})
	g.record("/billing_portal/sessions", startTime, err)
	if err != nil {
		return "", upstreamError("create portal session", err)
	}
	return session.URL, nil
}

func (g *Gateway) record(operation string, startTime time.Time, err error) {
	g.metrics.RecordUpstreamCallDuration(serviceName, operation, time.Since(startTime))
	if err != nil {
		g.metrics.RecordUpstreamCall(serviceName, operation, "error")
		g.logger.Error("stripe call failed",
			relay.Field{Key: "operation", Value: operation},
			relay.Field{Key: "error", Value: err})
		return
	}
	g.metrics.RecordUpstreamCall(serviceName, operation, "success")
}

// upstreamError wraps an SDK error in relay.ErrUpstream, keeping Stripe's
// error code in the message when one is present.
func upstreamError(operation string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code != "" {
		return fmt.Errorf("%w: %s: %s: %w", relay.ErrUpstream, operation, stripeErr.Code, err)
	}
	return fmt.Errorf("%w: %s: %w", relay.ErrUpstream, operation, err)
}
