package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/logistics-billing/internal/revenue"
)

const (
	cacheVersionKey = "analytics:version"
	bumpChannel     = "summaries.bump"
)

// Cache stores dashboard reads in Redis under versioned keys. Bump moves every
// reader to a fresh key space; superseded entries age out through the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) disabled() bool { return c == nil || c.client == nil }

// Version returns the current key-space version, seeding it at 1.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c.disabled() {
		return 0, nil
	}
	if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil {
		return 0, err
	}
	return max(ver, 1), nil
}

// BuildKey appends the current version to keyBase.
func (c *Cache) BuildKey(ctx context.Context, keyBase string) (string, error) {
	if c.disabled() {
		return keyBase, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return keyBase + ":v" + strconv.FormatInt(ver, 10), nil
}

// FetchJSON decodes the cached value at key into dest, populating it from
// loader on a miss.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("analytics: cache loader required")
	}
	if !c.disabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			return json.Unmarshal(payload, dest)
		case !errors.Is(err, redis.Nil):
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if !c.disabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached read and notifies other processes.
func (c *Cache) Bump(ctx context.Context) error {
	if c.disabled() {
		return nil
	}
	if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
		return err
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows bumps published by other processes until ctx
// ends. It is only needed when processes use different Redis databases for
// the version key; otherwise the shared counter is enough.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(version int64)) error {
	if c.disabled() {
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
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}

func keyKPI(r Range, mode revenue.Mode) string {
	return strings.Join([]string{"analytics", "kpi", r.token(), string(mode)}, ":")
}

func keyInboundKPI(r Range) string {
	return strings.Join([]string{"analytics", "inbound_kpi", r.token()}, ":")
}

func keyDaily(r Range, mode revenue.Mode) string {
	return strings.Join([]string{"analytics", "daily", r.token(), string(mode)}, ":")
}

func keyMonthly(from, to time.Time, mode revenue.Mode) string {
	return strings.Join([]string{"analytics", "monthly", monthToken(from), monthToken(to), string(mode)}, ":")
}

func monthToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01")
}
