// Package classify decides a boolean predicate for many nodes at once using
// two batched remote lookups: node to external entity id, then entity id to
// claims. Both stages are chunked, run under a concurrency limiter and cache
// every outcome, failures included.
package classify

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundprediction/linkpath/pkg/cache"
	"github.com/soundprediction/linkpath/pkg/limiter"
	"github.com/soundprediction/linkpath/pkg/telemetry"
	"github.com/soundprediction/linkpath/pkg/types"
)

const (
	// DefaultChunkSize is the number of keys sent in one bulk request.
	DefaultChunkSize = 50
	// DefaultTimeout bounds one bulk request.
	DefaultTimeout = 15 * time.Second
	// NoEntity is the cached external id of a node without an entity.
	NoEntity = ""

	// PropertyInstanceOf is the claim property naming an entity's class.
	PropertyInstanceOf = "P31"
	// ClassHuman is the entity class of people.
	ClassHuman = "Q5"
)

// Predicate derives a verdict from an entity's claims. Claims may be nil
// when the entity has none.
type Predicate func(claims types.Claims) bool

// InstanceOf returns a Predicate that holds when the entity is an instance
// of class.
func InstanceOf(class string) Predicate {
	return func(claims types.Claims) bool {
		return claims.Has(PropertyInstanceOf, class)
	}
}

// IsHuman is the default predicate.
var IsHuman = InstanceOf(ClassHuman)

// Report counts the remote work done by one call.
type Report struct {
	// Requests is the number of bulk requests issued.
	Requests int
	// FailedChunks is the number of requests that failed and whose members
	// were cached as negative.
	FailedChunks int
	// CacheHits is the number of keys served from the cache.
	CacheHits int
}

func (r Report) add(o Report) Report {
	return Report{
		Requests:     r.Requests + o.Requests,
		FailedChunks: r.FailedChunks + o.FailedChunks,
		CacheHits:    r.CacheHits + o.CacheHits,
	}
}

// Classifier resolves predicate verdicts for nodes.
type Classifier struct {
	entities  types.EntityLookup
	claims    types.ClaimsLookup
	ids       cache.Typed[string]
	verdicts  cache.Typed[bool]
	limiter   *limiter.Limiter
	chunkSize int
	timeout   time.Duration
	predicate Predicate
	observer  telemetry.Observer
	logger    *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithChunkSize sets the bulk request size. It must be positive.
func WithChunkSize(n int) Option {
	return func(c *Classifier) { c.chunkSize = n }
}

// WithLimiter sets the limiter shared by all chunk requests.
func WithLimiter(l *limiter.Limiter) Option {
	return func(c *Classifier) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPredicate replaces IsHuman.
func WithPredicate(p Predicate) Option {
	return func(c *Classifier) {
		if p != nil {
			c.predicate = p
		}
	}
}

// WithObserver sets the observer.
func WithObserver(o telemetry.Observer) Option {
	return func(c *Classifier) { c.observer = telemetry.OrNop(o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Classifier. It returns a *types.ConfigurationError when the
// chunk size is not positive.
func New(entities types.EntityLookup, claims types.ClaimsLookup, c *cache.Cache, opts ...Option) (*Classifier, error) {
	cl := &Classifier{
		entities:  entities,
		claims:    claims,
		ids:       cache.For[string](c, cache.NamespaceExternalID),
		verdicts:  cache.For[bool](c, cache.NamespaceClassification),
		chunkSize: DefaultChunkSize,
		timeout:   DefaultTimeout,
		predicate: IsHuman,
		observer:  telemetry.Nop(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.chunkSize <= 0 {
		return nil, types.NewConfigurationError("chunk size", "must be positive")
	}
	if cl.limiter == nil {
		cl.limiter = limiter.New(limiter.DefaultConcurrency)
	}
	return cl, nil
}

// ChunkSize returns the configured bulk request size.
func (c *Classifier) ChunkSize() int { return c.chunkSize }

// Classify returns a verdict for every distinct node. A node without an
// external entity is false.
//
// Chunk failures are absorbed: their members are cached as negative and
// counted in the Report. The only error returned is the context's.
func (c *Classifier) Classify(ctx context.Context, nodes []string) (map[string]bool, Report, error) {
	ids, report, err := c.ResolveExternalIDs(ctx, nodes)
	if err != nil {
		return nil, report, err
	}

	entityIDs := make([]string, 0, len(ids))
	for _, n := range dedup(nodes) {
		if id := ids[n]; id != NoEntity {
			entityIDs = append(entityIDs, id)
		}
	}

	verdicts, stageB, err := c.ResolveClassifications(ctx, entityIDs)
	report = report.add(stageB)
	if err != nil {
		return nil, report, err
	}

	out := make(map[string]bool, len(ids))
	for n, id := range ids {
		out[n] = id != NoEntity && verdicts[id]
	}
	return out, report, nil
}

// ResolveExternalIDs maps every distinct node to its external entity id, or
// NoEntity.
func (c *Classifier) ResolveExternalIDs(ctx context.Context, nodes []string) (map[string]string, Report, error) {
	return resolve(ctx, c, "entities", c.ids, dedup(nodes), c.entities.LookupEntities)
}

// ResolveClassifications maps every distinct external id to its verdict.
func (c *Classifier) ResolveClassifications(ctx context.Context, ids []string) (map[string]bool, Report, error) {
	lookup := func(ctx context.Context, chunk []string) (map[string]bool, error) {
		claims, err := c.claims.LookupClaims(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out := make(map[string]bool, len(claims))
		for id, cl := range claims {
			out[id] = c.predicate(cl)
		}
		return out, nil
	}
	return resolve(ctx, c, "claims", c.verdicts, dedup(ids), lookup)
}

// resolve serves keys from the cache and fetches the rest in chunks. Keys
// absent from a successful response, and every key of a failed chunk, are
// cached as the zero value of V.
func resolve[V any](
	ctx context.Context,
	c *Classifier,
	service string,
	store cache.Typed[V],
	keys []string,
	lookup func(ctx context.Context, chunk []string) (map[string]V, error),
) (map[string]V, Report, error) {
	var report Report
	out := make(map[string]V, len(keys))
	pending := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := store.Get(k); ok {
			out[k] = v
			report.CacheHits++
			continue
		}
		pending = append(pending, k)
	}
	if len(pending) == 0 {
		return out, report, nil
	}

	chunks := split(pending, c.chunkSize)
	results := make([]map[string]V, len(chunks))
	issued := make([]bool, len(chunks))
	failed := make([]bool, len(chunks))

	fns := make([]func(context.Context) error, len(chunks))
	for i, chunk := range chunks {
		fns[i] = func(ctx context.Context) error {
			issued[i] = true
			c.observer.Observe(telemetry.Event{Kind: telemetry.EventRemoteCall, Scope: service, Count: len(chunk)})

			rctx, cancel := context.WithTimeout(ctx, c.timeout)
			found, err := lookup(rctx, chunk)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed[i] = true
				found = nil
				c.observer.Observe(telemetry.Event{Kind: telemetry.EventRemoteError, Scope: service, Count: len(chunk), Err: err})
				c.observer.Observe(telemetry.Event{Kind: telemetry.EventChunkFailed, Scope: service, Count: len(chunk), Err: err})
				c.logger.Warn("bulk lookup failed, caching chunk as negative", "service", service, "size", len(chunk), "error", err)
			}

			res := make(map[string]V, len(chunk))
			for _, k := range chunk {
				v := found[k]
				store.Set(k, v)
				res[k] = v
			}
			results[i] = res
			return nil
		}
	}

	errs := c.limiter.Gather(ctx, fns...)

	for i := range chunks {
		if issued[i] {
			report.Requests++
		}
		if failed[i] {
			report.FailedChunks++
		}
		for k, v := range results[i] {
			out[k] = v
		}
	}
	for _, err := range errs {
		if err != nil {
			return nil, report, err
		}
	}
	return out, report, nil
}

func split(keys []string, size int) [][]string {
	chunks := make([][]string, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		chunks = append(chunks, keys[start:min(start+size, len(keys))])
	}
	return chunks
}

func dedup(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
