package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix = "dashboard:version"
	bumpChannel      = "dashboard.bump"
	scopeAll         = "all"
)

// Cache stores dashboard views in Redis under versioned keys. Each branch has
// its own version counter plus one for the firm-wide view.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client backs the cache.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Scope returns the version scope of a branch filter; the zero value is the firm.
func Scope(branchID uuid.NullUUID) string {
	if !branchID.Valid {
		return scopeAll
	}
	return branchID.UUID.String()
}

func versionKey(scope string) string {
	return versionKeyPrefix + ":" + scope
}

// Version returns the current version of scope, initialising when missing.
func (c *Cache) Version(ctx context.Context, scope string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(scope)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX keeps a concurrent bump from being overwritten.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key of a view with the scope's current version.
func (c *Cache) BuildKey(ctx context.Context, scope string, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"dashboard"}, append(parts, scope)...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, scope)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the loader.
// The returned flag reports a cache hit.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (bool, error) {
	if loader == nil {
		return false, errors.New("dashboard: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return false, err
		}
		return false, roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return true, json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return false, err
	}
	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return false, err
	}
	return false, json.Unmarshal(raw, dest)
}

// Invalidate bumps the branch version and the firm-wide version, then
// publishes the branch on the bump channel.
func (c *Cache) Invalidate(ctx context.Context, branchID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	scopes := []string{scopeAll}
	if branchID != uuid.Nil {
		scopes = append(scopes, branchID.String())
	}
	pipe := c.client.TxPipeline()
	for _, scope := range scopes {
		pipe.Incr(ctx, versionKey(scope))
	}
	pipe.Publish(ctx, bumpChannel, Scope(uuid.NullUUID{UUID: branchID, Valid: branchID != uuid.Nil}))
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe calls fn with the scope of every invalidation until ctx ends.
func (c *Cache) Subscribe(ctx context.Context, fn func(scope string)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()
	return nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
