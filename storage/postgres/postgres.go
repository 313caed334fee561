// Package postgres provides a PostgreSQL implementation of the relay.ProfileStore interface.
// It talks directly to the identity provider's database, where the profiles
// table is created and owned by the provider's schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

// DefaultTable is the profiles table name.
const DefaultTable = "profiles"

// Storage implements relay.ProfileStore using PostgreSQL
type Storage struct {
	pool  *pgxpool.Pool
	table string
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Table is the profiles table, optionally schema qualified ("public.profiles").
	Table string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Table:           DefaultTable,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{
		pool:  pool,
		table: quoteTable(config.Table),
	}, nil
}

// quoteTable sanitizes a possibly schema-qualified table name.
func quoteTable(table string) string {
	if table == "" {
		table = DefaultTable
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetProfile implements relay.ProfileStore
func (s *Storage) GetProfile(ctx context.Context, userID string) (*relay.Profile, error) {
	var (
		profile        relay.Profile
		email          *string
		customerID     *string
		subscriptionID *string
		status         *string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id::text, email, stripe_customer_id, subscription_id, subscription_status
			FROM `+s.table+` WHERE id::text = $1`,
		userID).Scan(&profile.ID, &email, &customerID, &subscriptionID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, relay.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.Email = deref(email)
	profile.CustomerID = deref(customerID)
	profile.SubscriptionID = deref(subscriptionID)
	profile.SubscriptionStatus = relay.SubscriptionStatus(deref(status))
	return &profile, nil
}

// SetCustomerID implements relay.ProfileStore
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if customerID == "" {
		return fmt.Errorf("customer id must not be empty")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+` SET stripe_customer_id = $2
		 WHERE id::text = $1
		   AND (stripe_customer_id IS NULL OR stripe_customer_id = '' OR stripe_customer_id = $2)`,
		userID, customerID)
	if err != nil {
		return fmt.Errorf("failed to set customer id: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table+` WHERE id::text = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to set customer id: %w", err)
	}
	if !exists {
		return relay.ErrProfileNotFound
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

	var (
		query string
		args  []interface{}
	)
	if update.SubscriptionID != nil {
		query = `UPDATE ` + s.table + ` SET subscription_id = $2, subscription_status = $3 WHERE stripe_customer_id = $1`
		args = []interface{}{customerID, *update.SubscriptionID, string(update.Status)}
	} else {
		query = `UPDATE ` + s.table + ` SET subscription_status = $2 WHERE stripe_customer_id = $1`
		args = []interface{}{customerID, string(update.Status)}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
