package main

import (
	"context"
	"fmt"

	gcfirestore "cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gorelay/pkg/config"
	"github.com/mihaimyh/gorelay/pkg/relay"
	firestorestore "github.com/mihaimyh/gorelay/storage/firestore"
	"github.com/mihaimyh/gorelay/storage/memory"
	"github.com/mihaimyh/gorelay/storage/postgres"
	"github.com/mihaimyh/gorelay/storage/postgrest"
	redisstore "github.com/mihaimyh/gorelay/storage/redis"
)

// openStore connects the profile store selected by PROFILE_STORE. The returned
// close function is never nil.
func openStore(ctx context.Context, cfg *config.Config, metrics relay.Metrics) (relay.ProfileStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.ProfileStore {
	case config.StorePostgREST:
		store, err := postgrest.New(postgrest.Config{
			BaseURL:    cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceRoleKey,
			Table:      cfg.ProfilesTable,
			Metrics:    metrics,
		})
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	case config.StorePostgres:
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.DatabaseURL
		pgConfig.Table = cfg.ProfilesTable
		store, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres profile store: %w", err)
		}
		return store, func() error { store.Close(); return nil }, nil

	case config.StoreFirestore:
		client, err := gcfirestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("firestore client: %w", err)
		}
		store, err := firestorestore.New(client, firestorestore.Config{ProfilesCollection: cfg.ProfilesTable})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, store.Close, nil

	case config.StoreRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: REDIS_URL: %v", relay.ErrConfig, err)
		}
		store, err := redisstore.New(goredis.NewClient(opts), redisstore.DefaultConfig())
		if err != nil {
			return nil, noop, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, noop, fmt.Errorf("redis profile store: %w", err)
		}
		return store, store.Close, nil

	case config.StoreMemory:
		return memory.New(), noop, nil
	}

	return nil, noop, fmt.Errorf("%w: unknown profile store %q", relay.ErrConfig, cfg.ProfileStore)
}
