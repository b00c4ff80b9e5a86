// Package kv provides the string key/value storage that persists the idea
// board, in the shape of browser local storage: flat keys, string values,
// synchronous write-through.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kokistudios/ideas/internal/store"
)

// ErrQuotaExceeded is returned by a backend whose configured quota would be
// exceeded by a write.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Storage is a string-valued key/value store.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend selected by cfg.Storage.Backend.
func Open(st *store.Store) (Storage, error) {
	cfg := st.Config.Storage
	switch cfg.Backend {
	case "", "file":
		return NewFileStorage(st.Path("storage.json"), cfg.QuotaBytes), nil
	case "sqlite":
		return NewSQLiteStorage(st.Path("ideas.db"))
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("storage.redis_url is required for the redis backend")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return NewRedisStorage(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
