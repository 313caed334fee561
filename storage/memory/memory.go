// Package memory provides an in-memory implementation of the relay.ProfileStore interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Storage implements relay.ProfileStore using an in-memory map keyed by user id
type Storage struct {
	mu       sync.RWMutex
	profiles map[string]*relay.Profile
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		profiles: make(map[string]*relay.Profile),
	}
}

// PutProfile inserts or replaces a profile. Profiles are owned by the identity
// provider; this exists for seeding tests and local development.
func (s *Storage) PutProfile(profile *relay.Profile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("invalid profile")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutations
	profileCopy := *profile
	s.profiles[profile.ID] = &profileCopy
	return nil
}

// GetProfile implements relay.ProfileStore
func (s *Storage) GetProfile(_ context.Context, userID string) (*relay.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, relay.ErrProfileNotFound
	}

	profileCopy := *profile
	return &profileCopy, nil
}

// SetCustomerID implements relay.ProfileStore
func (s *Storage) SetCustomerID(_ context.Context, userID, customerID string) error {
	if customerID == "" {
		return fmt.Errorf("customer id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return relay.ErrProfileNotFound
	}
	if profile.CustomerID != "" && profile.CustomerID != customerID {
		return relay.ErrCustomerLinked
	}
	profile.CustomerID = customerID
	return nil
}

// UpdateSubscriptionByCustomer implements relay.ProfileStore
func (s *Storage) UpdateSubscriptionByCustomer(_ context.Context, customerID string, update relay.SubscriptionUpdate) (bool, error) {
	if customerID == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := false
	for _, profile := range s.profiles {
		if profile.CustomerID != customerID {
			continue
		}
		matched = true
		if update.SubscriptionID != nil {
			profile.SubscriptionID = *update.SubscriptionID
		}
		profile.SubscriptionStatus = update.Status
	}
	return matched, nil
}

// Profiles returns a snapshot of every stored profile ordered by id.
func (s *Storage) Profiles() []relay.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]relay.Profile, 0, len(s.profiles))
	for _, profile := range s.profiles {
		out = append(out, *profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = make(map[string]*relay.Profile)
}
