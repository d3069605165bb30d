// Package cache provides the namespaced TTL cache shared by the edge source
// and the classifier.
//
// A Cache is an explicitly constructed instance: create one per process and
// hand it to the components that need it. Tests create a fresh Cache each.
// Entries expire passively when read after their namespace TTL; there is no
// invalidation besides overwrite.
//
// A stored negative value (false, "", an empty slice) is a real entry and is
// distinct from a miss. Use Has to tell the two apart without decoding.
package cache

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/soundprediction/linkpath/pkg/telemetry"
)

// Namespace partitions the key space. Each namespace has its own TTL.
type Namespace string

const (
	// NamespaceNeighbors holds node -> neighbor list.
	NamespaceNeighbors Namespace = "neighbors"
	// NamespaceExternalID holds node -> external entity id ("" = no entity).
	NamespaceExternalID Namespace = "external-id"
	// NamespaceClassification holds external id -> predicate verdict.
	NamespaceClassification Namespace = "classification"
)

// Default TTLs per namespace.
const (
	DefaultNeighborsTTL      = time.Hour
	DefaultExternalIDTTL     = 24 * time.Hour
	DefaultClassificationTTL = 24 * time.Hour
	// DefaultTTL applies to namespaces without a configured TTL.
	DefaultTTL = time.Hour
)

// Store is the raw key/value backend. A ttl <= 0 means the entry never
// expires. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Close() error
}

// Cache is a namespaced view over a Store.
type Cache struct {
	store    Store
	ttls     map[Namespace]time.Duration
	observer telemetry.Observer
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithTTL sets the TTL of one namespace.
func WithTTL(ns Namespace, ttl time.Duration) Option {
	return func(c *Cache) { c.ttls[ns] = ttl }
}

// WithObserver reports hits and misses to o.
func WithObserver(o telemetry.Observer) Option {
	return func(c *Cache) { c.observer = telemetry.OrNop(o) }
}

// WithLogger sets the logger used for store and decode errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache. Without WithStore it uses a MemoryStore.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttls: map[Namespace]time.Duration{
			NamespaceNeighbors:      DefaultNeighborsTTL,
			NamespaceExternalID:     DefaultExternalIDTTL,
			NamespaceClassification: DefaultClassificationTTL,
		},
		observer: telemetry.Nop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	return c
}

// TTL returns the TTL applied to entries of ns.
func (c *Cache) TTL(ns Namespace) time.Duration {
	if ttl, ok := c.ttls[ns]; ok {
		return ttl
	}
	return DefaultTTL
}

// Get returns the raw value stored under (ns, key).
func (c *Cache) Get(ns Namespace, key string) ([]byte, bool) {
	value, ok, err := c.store.Get(storeKey(ns, key))
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss", "namespace", ns, "key", key, "error", err)
		ok = false
	}
	kind := telemetry.EventCacheMiss
	if ok {
		kind = telemetry.EventCacheHit
	}
	c.observer.Observe(telemetry.Event{Kind: kind, Scope: string(ns), Key: key})
	return value, ok
}

// Set stores value under (ns, key) with the namespace TTL, overwriting any
// previous entry.
func (c *Cache) Set(ns Namespace, key string, value []byte) {
	if err := c.store.Set(storeKey(ns, key), value, c.TTL(ns)); err != nil {
		c.logger.Warn("cache write failed", "namespace", ns, "key", key, "error", err)
	}
}

// Has reports whether (ns, key) holds an unexpired entry, whatever its value.
func (c *Cache) Has(ns Namespace, key string) bool {
	_, ok, err := c.store.Get(storeKey(ns, key))
	return err == nil && ok
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func storeKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}

// Typed is a view of one namespace holding values of type V, encoded as JSON.
type Typed[V any] struct {
	cache *Cache
	ns    Namespace
}

// For returns the typed view of ns.
func For[V any](c *Cache, ns Namespace) Typed[V] {
	return Typed[V]{cache: c, ns: ns}
}

// Namespace returns the namespace of the view.
func (t Typed[V]) Namespace() Namespace { return t.ns }

// Get returns the value under key. ok is false on a miss or when the stored
// bytes do not decode as V.
func (t Typed[V]) Get(key string) (V, bool) {
	var v V
	raw, ok := t.cache.Get(t.ns, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.cache.logger.Warn("cache entry does not decode, treating as miss", "namespace", t.ns, "key", key, "error", err)
		return v, false
	}
	return v, true
}

// Set stores v under key.
func (t Typed[V]) Set(key string, v V) {
	raw, err := json.Marshal(v)
	if err != nil {
		t.cache.logger.Warn("cache entry does not encode", "namespace", t.ns, "key", key, "error", err)
		return
	}
	t.cache.Set(t.ns, key, raw)
}

// Has reports whether key holds an unexpired entry.
func (t Typed[V]) Has(key string) bool {
	return t.cache.Has(t.ns, key)
}
