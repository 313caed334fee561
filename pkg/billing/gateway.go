// Package billing relays checkout and portal requests to the payments provider
// and projects verified webhook events into profile subscription state.
package billing

import (
	"context"
	"time"
)

// Event types projected by the webhook ingestor.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"

	// CheckoutModeSubscription is the checkout session mode that carries a subscription.
	CheckoutModeSubscription = "subscription"
)

// CustomerParams describes a payments customer to create for a user.
type CustomerParams struct {
	UserID string
	Email  string
}

// CheckoutParams describes a subscription checkout session.
type CheckoutParams struct {
	CustomerID      string
	UserID          string
	PriceID         string
	TrialPeriodDays int64
	SuccessURL      string
	CancelURL       string
}

// PortalParams describes a customer portal session.
type PortalParams struct {
	CustomerID string
	ReturnURL  string
}

// Gateway is the payments provider surface used by the billing relay.
// Implementations wrap provider failures in relay.ErrUpstream.
type Gateway interface {
	// CreateCustomer creates a customer and returns its id. Calls for the same
	// user must be idempotent on the provider side.
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)

	// CreateCheckoutSession returns the id of a new checkout session.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)

	// CreatePortalSession returns the URL of a new billing portal session.
	CreatePortalSession(ctx context.Context, params PortalParams) (string, error)
}

// Event is a verified webhook event reduced to the fields the projection reads.
type Event struct {
	ID             string
	Type           string
	Created        time.Time
	CustomerID     string
	SubscriptionID string
	Status         string
	Mode           string
}

// EventVerifier authenticates a raw webhook payload and decodes it.
// A signature failure wraps relay.ErrInvalidSignature; the payload must not be
// interpreted in that case. A verified payload whose embedded object cannot be
// decoded wraps relay.ErrBadRequest.
type EventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
