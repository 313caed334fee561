package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gorelay/pkg/billing"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Verifier implements billing.EventVerifier with Stripe's signing scheme
type Verifier struct {
	secret    string
	tolerance time.Duration
}

var _ billing.EventVerifier = (*Verifier)(nil)

// NewVerifier creates a verifier for the endpoint's signing secret.
// A zero tolerance uses webhook.DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: stripe webhook secret is required", relay.ErrConfig)
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}, nil
}

// VerifyEvent checks the signature before the payload is decoded. The event's
// API version is not compared with the SDK's.
func (v *Verifier) VerifyEvent(payload []byte, signatureHeader string) (*billing.Event, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, v.secret, v.tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", relay.ErrInvalidSignature, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: decode event: %v", relay.ErrBadRequest, err)
	}

	out := &billing.Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case billing.EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %v", relay.ErrBadRequest, err)
		}
		out.Mode = string(session.Mode)
		if session.Customer != nil {
			out.CustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			out.SubscriptionID = session.Subscription.ID
		}
	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", relay.ErrBadRequest, err)
		}
		out.SubscriptionID = subscription.ID
		out.Status = string(subscription.Status)
		if subscription.Customer != nil {
			out.CustomerID = subscription.Customer.ID
		}
	}
	return out, nil
}
