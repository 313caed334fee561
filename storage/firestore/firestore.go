// Package firestore provides a Firestore implementation of the relay.ProfileStore interface.
// Each profile is a document keyed by user id.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	fieldEmail          = "email"
	fieldCustomerID     = "stripe_customer_id"
	fieldSubscriptionID = "subscription_id"
	fieldStatus         = "subscription_status"
)

// Storage implements relay.ProfileStore using Google Cloud Firestore
type Storage struct {
	client             *firestore.Client
	profilesCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// ProfilesCollection is the Firestore collection holding user profiles
	// Default: "profiles"
	ProfilesCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.ProfilesCollection == "" {
		config.ProfilesCollection = "profiles"
	}

	return &Storage{
		client:             client,
		profilesCollection: config.ProfilesCollection,
	}, nil
}

// PutProfile writes a whole profile document. Used for seeding.
func (s *Storage) PutProfile(ctx context.Context, profile *relay.Profile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("invalid profile")
	}

	_, err := s.client.Collection(s.profilesCollection).Doc(profile.ID).Set(ctx, map[string]interface{}{
		fieldEmail:          profile.Email,
		fieldCustomerID:     profile.CustomerID,
		fieldSubscriptionID: profile.SubscriptionID,
		fieldStatus:         string(profile.SubscriptionStatus),
	})
	if err != nil {
		return fmt.Errorf("failed to put profile: %w", err)
	}
	return nil
}

// GetProfile implements relay.ProfileStore
func (s *Storage) GetProfile(ctx context.Context, userID string) (*relay.Profile, error) {
	snap, err := s.client.Collection(s.profilesCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, relay.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if !snap.Exists() {
		return nil, relay.ErrProfileNotFound
	}

	data := snap.Data()
	return &relay.Profile{
		ID:                 userID,
		Email:              getString(data, fieldEmail),
		CustomerID:         getString(data, fieldCustomerID),
		SubscriptionID:     getString(data, fieldSubscriptionID),
		SubscriptionStatus: relay.SubscriptionStatus(getString(data, fieldStatus)),
	}, nil
}

// SetCustomerID implements relay.ProfileStore
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if customerID == "" {
		return fmt.Errorf("customer id must not be empty")
	}

	doc := s.client.Collection(s.profilesCollection).Doc(userID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			return err
		}
		if current := getString(snap.Data(), fieldCustomerID); current != "" && current != customerID {
			return relay.ErrCustomerLinked
		}
		return tx.Update(doc, []firestore.Update{{Path: fieldCustomerID, Value: customerID}})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return relay.ErrProfileNotFound
		}
		if errors.Is(err, relay.ErrCustomerLinked) {
			return relay.ErrCustomerLinked
		}
		return fmt.Errorf("failed to set customer id: %w", err)
	}
	return nil
}

// UpdateSubscriptionByCustomer implements relay.ProfileStore
func (s *Storage) UpdateSubscriptionByCustomer(
	ctx context.Context, customerID string, update relay.SubscriptionUpdate,
) (bool, error) {
	if customerID == "" {
		return false, nil
	}

	updates := []firestore.Update{{Path: fieldStatus, Value: string(update.Status)}}
	if update.SubscriptionID != nil {
		updates = append(updates, firestore.Update{Path: fieldSubscriptionID, Value: *update.SubscriptionID})
	}

	query := s.client.Collection(s.profilesCollection).Where(fieldCustomerID, "==", customerID)

	matched := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		matched = false
		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := tx.Update(doc.Ref, updates); err != nil {
				return err
			}
		}
		matched = len(docs) > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	return matched, nil
}

// Close closes the Firestore client
func (s *Storage) Close() error {
	return s.client.Close()
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
