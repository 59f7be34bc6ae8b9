package natskv

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Connect establishes a NATS connection and ensures the KV bucket exists.
// Entries in the bucket expire after ttl. The returned close function drains
// the connection.
func Connect(ctx context.Context, url, bucket string, ttl time.Duration) (*Cache, func(), error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create kv bucket %q: %w", bucket, err)
	}

	return New(kv), func() { _ = nc.Drain() }, nil
}
