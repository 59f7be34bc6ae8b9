// Package natskv implements the cache port using NATS JetStream KV as the
// shared L2 cache.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a NATS JetStream KeyValue store as an L2 cache.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// encodeKey maps cache keys onto the NATS KV key alphabet. Colons are used
// as segment separators in cache keys but are not valid in KV keys.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

// envelope wraps a cached value with its expiry. The bucket-level TTL only
// bounds the longest-lived entry class; per-key TTLs are enforced here.
type envelope struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// encodeEnvelope wraps value with an expiry of now+ttl. A non-positive ttl
// leaves the entry to the bucket-level TTL alone.
func encodeEnvelope(value []byte, ttl time.Duration, now time.Time) ([]byte, error) {
	env := envelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = now.Add(ttl)
	}
	return json.Marshal(env)
}

// decodeEnvelope unwraps a stored entry. ok is false when the entry has
// expired.
func decodeEnvelope(data []byte, now time.Time) (value []byte, ok bool, err error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if !env.ExpiresAt.IsZero() && now.After(env.ExpiresAt) {
		return nil, false, nil
	}
	return env.Value, true, nil
}

// Get retrieves a value from the NATS KV store. Entries past their per-key
// expiry are treated as misses and removed.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	value, ok, err := decodeEnvelope(entry.Value(), time.Now())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		_ = c.kv.Delete(ctx, encodeKey(key))
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores a value in the NATS KV store with its own TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := encodeEnvelope(value, ttl, time.Now())
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = c.kv.Put(ctx, encodeKey(key), data)
	return err
}

// Delete removes a value from the NATS KV store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
