package relay

import "context"

// ProfileStore delegates profile reads and writes to the identity provider's
// data store. Implementations live under storage/.
type ProfileStore interface {
	// GetProfile returns the profile for userID or ErrProfileNotFound.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// SetCustomerID links a payments customer to the profile. The write only
	// succeeds while no customer is stored or the same id is stored again; a
	// stored id is never replaced or cleared. Returns ErrProfileNotFound when no
	// profile matches userID and ErrCustomerLinked when a different id is stored.
	SetCustomerID(ctx context.Context, userID, customerID string) error

	// UpdateSubscriptionByCustomer applies update to every profile linked to
	// customerID. It reports whether any profile matched; no match is not an error.
	UpdateSubscriptionByCustomer(ctx context.Context, customerID string, update SubscriptionUpdate) (bool, error)
}
