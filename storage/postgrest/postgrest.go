// Package postgrest provides a relay.ProfileStore backed by the identity
// provider's PostgREST data API (Supabase's /rest/v1). It authenticates with the
// service role key, so row level security does not apply.
package postgrest

import (
	"context"
	"fmt"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

const (
	// DefaultTable is the profiles table name.
	DefaultTable = "profiles"

	restPath      = "/rest/v1"
	schema        = "public"
	selectColumns = "id,email,stripe_customer_id,subscription_id,subscription_status"
)

// Config holds PostgREST storage configuration
type Config struct {
	// BaseURL is the identity provider's project URL (required)
	BaseURL string

	// ServiceKey is the service role key (required)
	ServiceKey string

	// Table defaults to DefaultTable.
	Table string

	Metrics relay.Metrics
}

// Storage implements relay.ProfileStore over the PostgREST client
type Storage struct {
	restURL string
	table   string
	client  *postgrest.Client
	metrics relay.Metrics
}

type profileRow struct {
	ID                 string  `json:"id"`
	Email              *string `json:"email"`
	StripeCustomerID   *string `json:"stripe_customer_id"`
	SubscriptionID     *string `json:"subscription_id"`
	SubscriptionStatus *string `json:"subscription_status"`
}

// New creates a PostgREST storage adapter
func New(config Config) (*Storage, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: postgrest base url is required", relay.ErrConfig)
	}
	serviceKey := strings.TrimSpace(config.ServiceKey)
	if serviceKey == "" {
		return nil, fmt.Errorf("%w: postgrest service key is required", relay.ErrConfig)
	}
	table := config.Table
	if table == "" {
		table = DefaultTable
	}

	restURL := baseURL + restPath
	client := postgrest.NewClient(restURL, schema, map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("%w: postgrest client: %v", relay.ErrConfig, client.ClientError)
	}

	return &Storage{
		restURL: restURL,
		table:   table,
		client:  client,
		metrics: relay.MetricsOrNoop(config.Metrics),
	}, nil
}

// GetProfile implements relay.ProfileStore
func (s *Storage) GetProfile(ctx context.Context, userID string) (*relay.Profile, error) {
	var rows []profileRow
	err := s.exec(ctx, "get_profile", func() error {
		_, err := s.client.From(s.table).
			Select(selectColumns, "", false).
			Eq("id", userID).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, relay.ErrProfileNotFound
	}
	return rows[0].profile(), nil
}

// SetCustomerID implements relay.ProfileStore. The update only matches a
// profile with no customer or the same one; a miss is resolved by reading the
// profile back.
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if customerID == "" {
		return fmt.Errorf("customer id must not be empty")
	}

	var rows []profileRow
	err := s.exec(ctx, "set_customer_id", func() error {
		_, err := s.client.From(s.table).
			Update(map[string]string{"stripe_customer_id": customerID}, "representation", "").
			Eq("id", userID).
			Or("stripe_customer_id.is.null,stripe_customer_id.eq.,stripe_customer_id.eq."+customerID, "").
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set customer id: %w", err)
	}
	if len(rows) > 0 {
		return nil
	}

	if _, err := s.GetProfile(ctx, userID); err != nil {
		return err
	}
	return relay.ErrCustomerLinked
}

// UpdateSubscriptionByCustomer implements relay.ProfileStore
func (s *Storage) UpdateSubscriptionByCustomer(
	ctx context.Context, customerID string, update relay.SubscriptionUpdate,
) (bool, error) {
	if customerID == "" {
		return false, nil
	}

	body := map[string]string{"subscription_status": string(update.Status)}
	if update.SubscriptionID != nil {
		body["subscription_id"] = *update.SubscriptionID
	}

	var rows []profileRow
	err := s.exec(ctx, "update_subscription", func() error {
		_, err := s.client.From(s.table).
			Update(body, "representation", "").
			Eq("stripe_customer_id", customerID).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	return len(rows) > 0, nil
}

// exec runs one client call with metrics. The client takes no context, so the
// call runs on its own goroutine and ctx only bounds how long the caller waits.
func (s *Storage) exec(ctx context.Context, operation string, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	startTime := time.Now()
	done := make(chan error, 1)
	go func() { done <- call() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.metrics.RecordUpstreamCallDuration("store", operation, time.Since(startTime))
	if err != nil {
		s.metrics.RecordUpstreamCall("store", operation, "error")
		return err
	}
	s.metrics.RecordUpstreamCall("store", operation, "ok")
	return nil
}

func (r profileRow) profile() *relay.Profile {
	return &relay.Profile{
		ID:                 r.ID,
		Email:              deref(r.Email),
		CustomerID:         deref(r.StripeCustomerID),
		SubscriptionID:     deref(r.SubscriptionID),
		SubscriptionStatus: relay.SubscriptionStatus(deref(r.SubscriptionStatus)),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
