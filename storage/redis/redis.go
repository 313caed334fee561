// Package redis provides a Redis implementation of the relay.ProfileStore interface.
// Profiles are hashes; a per-customer set indexes profiles by payments customer
// id. Mutations run as Lua scripts so the hash and index change together.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	fieldEmail          = "email"
	fieldCustomerID     = "stripe_customer_id"
	fieldSubscriptionID = "subscription_id"
	fieldStatus         = "subscription_status"
)

// Storage implements relay.ProfileStore using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "gorelay:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "gorelay:",
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "gorelay:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()

	return s, nil
}

// loadScripts compiles the Lua scripts for atomic profile mutations
func (s *Storage) loadScripts() {
	// Link a customer to an existing profile unless another one is already linked.
	// Returns 0 for a missing profile, -1 for a conflicting customer.
	s.scripts["set_customer"] = redis.NewScript(`
		local profileKey = KEYS[1]
		local customerID = ARGV[1]
		local indexPrefix = ARGV[2]
		local userID = ARGV[3]

		if redis.call('EXISTS', profileKey) == 0 then
			return 0
		end

		local previous = redis.call('HGET', profileKey, 'stripe_customer_id')
		if previous and previous ~= '' and previous ~= customerID then
			return -1
		end

		redis.call('HSET', profileKey, 'stripe_customer_id', customerID)
		redis.call('SADD', indexPrefix .. customerID, userID)
		return 1
	`)

	// Apply a subscription update to every profile indexed under a customer
	s.scripts["update_subscription"] = redis.NewScript(`
		local indexKey = KEYS[1]
		local profilePrefix = ARGV[1]
		local customerID = ARGV[2]
		local status = ARGV[3]
		local hasSubscription = ARGV[4]
		local subscriptionID = ARGV[5]

		local matched = 0
		for _, userID in ipairs(redis.call('SMEMBERS', indexKey)) do
			local profileKey = profilePrefix .. userID
			if redis.call('HGET', profileKey, 'stripe_customer_id') == customerID then
				redis.call('HSET', profileKey, 'subscription_status', status)
				if hasSubscription == '1' then
					redis.call('HSET', profileKey, 'subscription_id', subscriptionID)
				end
				matched = matched + 1
			else
				redis.call('SREM', indexKey, userID)
			end
		end
		return matched
	`)
}

// PutProfile writes a whole profile and indexes its customer id. Profiles are
// provisioned by the identity provider; this is used for seeding.
func (s *Storage) PutProfile(ctx context.Context, profile *relay.Profile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("invalid profile")
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.profileKey(profile.ID),
			fieldEmail, profile.Email,
			fieldCustomerID, profile.CustomerID,
			fieldSubscriptionID, profile.SubscriptionID,
			fieldStatus, string(profile.SubscriptionStatus),
		)
		if profile.CustomerID != "" {
			pipe.SAdd(ctx, s.customerKey(profile.CustomerID), profile.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put profile: %w", err)
	}
	return nil
}

// GetProfile implements relay.ProfileStore
func (s *Storage) GetProfile(ctx context.Context, userID string) (*relay.Profile, error) {
	fields, err := s.client.HGetAll(ctx, s.profileKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(fields) == 0 {
		return nil, relay.ErrProfileNotFound
	}

	return &relay.Profile{
		ID:                 userID,
		Email:              fields[fieldEmail],
		CustomerID:         fields[fieldCustomerID],
		SubscriptionID:     fields[fieldSubscriptionID],
		SubscriptionStatus: relay.SubscriptionStatus(fields[fieldStatus]),
	}, nil
}

// SetCustomerID implements relay.ProfileStore
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if customerID == "" {
		return fmt.Errorf("customer id must not be empty")
	}

	result, err := s.scripts["set_customer"].Run(ctx, s.client,
		[]string{s.profileKey(userID)},
		customerID, s.config.KeyPrefix+"customer:", userID,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to set customer id: %w", err)
	}
	switch result {
	case 0:
		return relay.ErrProfileNotFound
	case -1:
		return relay.ErrCustomerLinked
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

	hasSubscription, subscriptionID := "0", ""
	if update.SubscriptionID != nil {
		hasSubscription, subscriptionID = "1", *update.SubscriptionID
	}

	matched, err := s.scripts["update_subscription"].Run(ctx, s.client,
		[]string{s.customerKey(customerID)},
		s.config.KeyPrefix+"profile:", customerID, string(update.Status), hasSubscription, subscriptionID,
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	return matched > 0, nil
}

func (s *Storage) profileKey(userID string) string {
	return s.config.KeyPrefix + "profile:" + userID
}

func (s *Storage) customerKey(customerID string) string {
	return s.config.KeyPrefix + "customer:" + customerID
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
