package linkcheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsKVBucket  = "docmake-linkcheck"
	natsSubject   = "docmake.linkcheck.broken"
	natsCacheTTL  = time.Hour
	natsFailTTL   = 5 * time.Minute
	natsKVMaxSize = 100 * 1024 * 1024
)

// NATSCache is a shared link result cache backed by JetStream KV. It also
// publishes broken-link events so downstream tooling can file issues.
type NATSCache struct {
	conn *nats.Conn
	js   jetstream.JetStream
	kv   jetstream.KeyValue
}

// NewNATSCache connects to NATS and binds the link cache KV bucket.
func NewNATSCache(url string) (*NATSCache, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cache := &NATSCache{conn: conn, js: js}
	if err := cache.initKVBucket(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize KV bucket: %w", err)
	}

	slog.Info("NATS link cache initialized", "url", url, "bucket", natsKVBucket)
	return cache, nil
}

// initKVBucket creates or gets the KV bucket for the link cache.
func (c *NATSCache) initKVBucket() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := c.js.KeyValue(ctx, natsKVBucket)
	if err == nil {
		c.kv = kv
		return nil
	}

	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      natsKVBucket,
		Description: "Link verification cache for docmake",
		MaxBytes:    natsKVMaxSize,
		History:     1, // Keep only latest value
	})
	if err != nil {
		return fmt.Errorf("failed to create KV bucket: %w", err)
	}
	c.kv = kv
	return nil
}

// Get retrieves a cached result, (nil, nil) when the key is absent.
func (c *NATSCache) Get(ctx context.Context, url string) (*CacheEntry, error) {
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entry, err := c.kv.Get(opCtx, kvKey(url))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil // Not cached
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var cached CacheEntry
	if err := json.Unmarshal(entry.Value(), &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &cached, nil
}

// Set stores a verification result.
func (c *NATSCache) Set(ctx context.Context, entry *CacheEntry) error {
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entry.LastChecked = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if _, err := c.kv.Put(opCtx, kvKey(entry.URL), data); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Valid checks the entry against the TTL; failures are re-checked sooner.
func (c *NATSCache) Valid(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	ttl := natsCacheTTL
	if !entry.IsValid {
		ttl = natsFailTTL
	}
	return time.Since(entry.LastChecked) < ttl
}

// PublishBrokenLink publishes a broken link event.
func (c *NATSCache) PublishBrokenLink(ctx context.Context, event *BrokenLinkEvent) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.js.Publish(opCtx, natsSubject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("Published broken link event", "url", event.URL, "source", event.SourcePage)
	return nil
}

// Close closes the NATS connection.
func (c *NATSCache) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// kvKey maps a URL to a KV-safe key. NATS keys cannot contain several URL
// characters, and lossy escaping would let distinct URLs share a key, so the
// URL is hashed instead.
func kvKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
