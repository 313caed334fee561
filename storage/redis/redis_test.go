package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

var _ relay.ProfileStore = (*Storage)(nil)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	// Clear test database
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := New(setupTestRedis(t), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestNew(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	storage, err := New(redis.NewClient(&redis.Options{Addr: "localhost:6379"}), Config{})
	require.NoError(t, err)
	assert.Equal(t, "gorelay:", storage.config.KeyPrefix)
	assert.Equal(t, "gorelay:profile:user1", storage.profileKey("user1"))
	assert.Equal(t, "gorelay:customer:cus_1", storage.customerKey("cus_1"))
}

func TestStorage_GetProfile(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.GetProfile(ctx, "user1")
	assert.ErrorIs(t, err, relay.ErrProfileNotFound)

	require.NoError(t, storage.PutProfile(ctx, &relay.Profile{ID: "user1", Email: "a@example.com"}))
	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, &relay.Profile{ID: "user1", Email: "a@example.com"}, profile)
}

func TestStorage_SetCustomerID(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	require.NoError(t, storage.PutProfile(ctx, &relay.Profile{ID: "user1"}))

	assert.ErrorIs(t, storage.SetCustomerID(ctx, "missing", "cus_1"), relay.ErrProfileNotFound)
	assert.Error(t, storage.SetCustomerID(ctx, "user1", ""))
	require.NoError(t, storage.SetCustomerID(ctx, "user1", "cus_1"))

	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", profile.CustomerID)

	members, err := storage.client.SMembers(ctx, storage.customerKey("cus_1")).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"user1"}, members)

	require.NoError(t, storage.SetCustomerID(ctx, "user1", "cus_1"))
	assert.ErrorIs(t, storage.SetCustomerID(ctx, "user1", "cus_2"), relay.ErrCustomerLinked)
	profile, err = storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", profile.CustomerID)

	exists, err := storage.client.Exists(ctx, storage.customerKey("cus_2")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestStorage_UpdateSubscriptionByCustomer(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	require.NoError(t, storage.PutProfile(ctx, &relay.Profile{ID: "user1", Email: "a@example.com", CustomerID: "cus_1"}))

	subID := "sub_1"
	matched, err := storage.UpdateSubscriptionByCustomer(ctx, "cus_1", relay.SubscriptionUpdate{
		SubscriptionID: &subID, Status: relay.StatusTrialing,
	})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = storage.UpdateSubscriptionByCustomer(ctx, "cus_1", relay.SubscriptionUpdate{Status: relay.StatusCanceled})
	require.NoError(t, err)
	assert.True(t, matched)

	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, &relay.Profile{
		ID: "user1", Email: "a@example.com", CustomerID: "cus_1",
		SubscriptionID: "sub_1", SubscriptionStatus: relay.StatusCanceled,
	}, profile)

	matched, err = storage.UpdateSubscriptionByCustomer(ctx, "cus_unknown", relay.SubscriptionUpdate{Status: relay.StatusActive})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestStorage_StaleIndexEntriesSkipped(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	require.NoError(t, storage.PutProfile(ctx, &relay.Profile{ID: "user1", CustomerID: "cus_1"}))
	// Re-seeding with another customer leaves user1 in the cus_1 index
	require.NoError(t, storage.PutProfile(ctx, &relay.Profile{ID: "user1", CustomerID: "cus_2"}))

	matched, err := storage.UpdateSubscriptionByCustomer(ctx, "cus_1", relay.SubscriptionUpdate{Status: relay.StatusActive})
	require.NoError(t, err)
	assert.False(t, matched)

	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, profile.SubscriptionStatus)
}
