// Package relay holds the types shared by every relay component: the
// authenticated principal, the user profile owned by the identity provider's
// data store, the error taxonomy, and the logging and metrics hooks.
package relay

// Principal is the identity resolved from a bearer credential.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SubscriptionStatus mirrors the payments provider's subscription lifecycle.
// Values reported by the provider that are not listed below are stored verbatim.
type SubscriptionStatus string

const (
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// Known reports whether s is one of the lifecycle states listed above.
func (s SubscriptionStatus) Known() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled,
		StatusIncomplete, StatusIncompleteExpired, StatusUnpaid, StatusPaused:
		return true
	}
	return false
}

// Profile is the per-user record holding billing linkage and subscription state.
type Profile struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	CustomerID         string             `json:"stripe_customer_id,omitempty"`
	SubscriptionID     string             `json:"subscription_id,omitempty"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status,omitempty"`
}

// HasCustomer reports whether a payments customer is linked to the profile.
func (p *Profile) HasCustomer() bool {
	return p != nil && p.CustomerID != ""
}

// SubscriptionUpdate is the projection written by the webhook ingestor.
// A nil SubscriptionID leaves the stored subscription id untouched.
type SubscriptionUpdate struct {
	SubscriptionID *string
	Status         SubscriptionStatus
}
