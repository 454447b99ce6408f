package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/consultahub/consulta-server/internal/domain"
)

// CacheStore is the key-value surface the role cache needs. Both the plain
// and the Prometheus-instrumented Redis wrappers satisfy it.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache provides Redis-backed caching for role lookups. It is advisory
// only: hierarchy checks on the administration path always read the store.
type Cache struct {
	store CacheStore
}

// NewCache constructs a role cache backed by the provided store.
func NewCache(store CacheStore) *Cache {
	return &Cache{store: store}
}

// Get fetches a cached role if present. A miss returns an empty role and
// no error.
func (c *Cache) Get(ctx context.Context, userID string) (domain.Role, error) {
	if c == nil || c.store == nil {
		return "", nil
	}

	raw, err := c.store.Get(ctx, cacheKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get cached role: %w", err)
	}

	role, err := domain.ParseRole(raw)
	if err != nil {
		return "", nil
	}

	return role, nil
}

// Set stores the role for the provided TTL.
func (c *Cache) Set(ctx context.Context, userID string, role domain.Role, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return nil
	}

	if err := c.store.Set(ctx, cacheKey(userID), string(role), ttl); err != nil {
		return fmt.Errorf("set cached role: %w", err)
	}

	return nil
}

// Invalidate removes the cached role entry if it exists.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.store == nil {
		return nil
	}

	if err := c.store.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("invalidate cached role: %w", err)
	}

	return nil
}

func cacheKey(userID string) string {
	return "role:" + userID
}
