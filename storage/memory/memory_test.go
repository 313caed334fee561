package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

var _ relay.ProfileStore = (*Storage)(nil)

func TestStorage_GetProfile(t *testing.T) {
	storage := New()
	ctx := t.Context()

	_, err := storage.GetProfile(ctx, "user1")
	assert.ErrorIs(t, err, relay.ErrProfileNotFound)

	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user1", Email: "a@example.com"}))

	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", profile.Email)
	assert.False(t, profile.HasCustomer())

	// Returned profiles are copies
	profile.Email = "mutated@example.com"
	again, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", again.Email)
}

func TestStorage_PutProfile_Invalid(t *testing.T) {
	storage := New()
	assert.Error(t, storage.PutProfile(nil))
	assert.Error(t, storage.PutProfile(&relay.Profile{}))
}

func TestStorage_SetCustomerID(t *testing.T) {
	storage := New()
	ctx := t.Context()
	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user1"}))

	assert.ErrorIs(t, storage.SetCustomerID(ctx, "missing", "cus_1"), relay.ErrProfileNotFound)
	assert.Error(t, storage.SetCustomerID(ctx, "user1", ""))

	require.NoError(t, storage.SetCustomerID(ctx, "user1", "cus_1"))
	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", profile.CustomerID)
}

func TestStorage_SetCustomerID_KeepsLinkedCustomer(t *testing.T) {
	storage := New()
	ctx := t.Context()
	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user1", CustomerID: "cus_1"}))

	require.NoError(t, storage.SetCustomerID(ctx, "user1", "cus_1"))
	assert.ErrorIs(t, storage.SetCustomerID(ctx, "user1", "cus_2"), relay.ErrCustomerLinked)

	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", profile.CustomerID)
}

func TestStorage_UpdateSubscriptionByCustomer(t *testing.T) {
	storage := New()
	ctx := t.Context()
	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user1", CustomerID: "cus_1", SubscriptionID: "sub_old"}))
	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user2", CustomerID: "cus_2"}))

	subID := "sub_new"
	matched, err := storage.UpdateSubscriptionByCustomer(ctx, "cus_1", relay.SubscriptionUpdate{
		SubscriptionID: &subID,
		Status:         relay.StatusTrialing,
	})
	require.NoError(t, err)
	assert.True(t, matched)

	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", profile.SubscriptionID)
	assert.Equal(t, relay.StatusTrialing, profile.SubscriptionStatus)

	// Status-only updates leave the subscription id alone
	matched, err = storage.UpdateSubscriptionByCustomer(ctx, "cus_1", relay.SubscriptionUpdate{Status: relay.StatusCanceled})
	require.NoError(t, err)
	assert.True(t, matched)
	profile, err = storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", profile.SubscriptionID)
	assert.Equal(t, relay.StatusCanceled, profile.SubscriptionStatus)

	other, err := storage.GetProfile(ctx, "user2")
	require.NoError(t, err)
	assert.Empty(t, other.SubscriptionStatus)
}

func TestStorage_UpdateSubscriptionByCustomer_NoMatch(t *testing.T) {
	storage := New()
	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user1", CustomerID: "cus_1"}))

	matched, err := storage.UpdateSubscriptionByCustomer(t.Context(), "cus_unknown", relay.SubscriptionUpdate{Status: relay.StatusActive})
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = storage.UpdateSubscriptionByCustomer(t.Context(), "", relay.SubscriptionUpdate{Status: relay.StatusActive})
	require.NoError(t, err)
	assert.False(t, matched)

	assert.Equal(t, []relay.Profile{{ID: "user1", CustomerID: "cus_1"}}, storage.Profiles())
}

func TestStorage_ConcurrentAccess(t *testing.T) {
	storage := New()
	ctx := t.Context()
	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user1", CustomerID: "cus_1"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = storage.UpdateSubscriptionByCustomer(ctx, "cus_1", relay.SubscriptionUpdate{Status: relay.StatusActive})
		}()
		go func() {
			defer wg.Done()
			_, _ = storage.GetProfile(ctx, "user1")
		}()
	}
	wg.Wait()

	profile, err := storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, relay.StatusActive, profile.SubscriptionStatus)
}

func TestStorage_Clear(t *testing.T) {
	storage := New()
	require.NoError(t, storage.PutProfile(&relay.Profile{ID: "user1"}))
	storage.Clear()
	assert.Empty(t, storage.Profiles())
}
