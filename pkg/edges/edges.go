// Package edges resolves a node to its outgoing neighbors through a paginated
// remote transport, caching complete neighbor lists.
package edges

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soundprediction/linkpath/pkg/cache"
	"github.com/soundprediction/linkpath/pkg/limiter"
	"github.com/soundprediction/linkpath/pkg/telemetry"
	"github.com/soundprediction/linkpath/pkg/types"
)

const (
	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 20 * time.Second

	service = "links"
)

// Fetch is the outcome of one Neighbors call.
type Fetch struct {
	// Nodes are the distinct primary-namespace neighbors in first-seen order.
	Nodes []string
	// Requests is the number of page requests this caller issued. Callers
	// that joined another caller's in-flight fetch report zero.
	Requests int
	// Cached is true when the neighbors came from the cache.
	Cached bool
}

// Source fetches and caches neighbor lists.
type Source struct {
	pager     types.LinkPager
	neighbors cache.Typed[[]string]
	limiter   *limiter.Limiter
	timeout   time.Duration
	observer  telemetry.Observer
	logger    *slog.Logger
	group     singleflight.Group
}

// Option configures a Source.
type Option func(*Source)

// WithLimiter bounds concurrent page requests.
func WithLimiter(l *limiter.Limiter) Option {
	return func(s *Source) { s.limiter = l }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithObserver sets the observer receiving remote call events.
func WithObserver(o telemetry.Observer) Option {
	return func(s *Source) { s.observer = telemetry.OrNop(o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Source reading pages from pager and caching in c.
func New(pager types.LinkPager, c *cache.Cache, opts ...Option) *Source {
	s := &Source{
		pager:     pager,
		neighbors: cache.For[[]string](c, cache.NamespaceNeighbors),
		timeout:   DefaultTimeout,
		observer:  telemetry.Nop(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Neighbors returns the neighbors of node. It fails with
// *types.NotFoundError when the remote reports the node missing and with
// *types.RemoteFetchError for any other failure, including a failure on a
// later page. Failed fetches are never cached.
//
// Concurrent calls for the same node share one fetch. The shared fetch is
// detached from the caller's cancellation so that it can still complete and
// populate the cache; a caller whose ctx ends gets ctx.Err().
func (s *Source) Neighbors(ctx context.Context, node string) (Fetch, error) {
	if nodes, ok := s.neighbors.Get(node); ok {
		return Fetch{Nodes: nodes, Cached: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Fetch{}, err
	}

	leader := false
	ch := s.group.DoChan(node, func() (any, error) {
		leader = true
		return s.fetch(context.WithoutCancel(ctx), node)
	})

	select {
	case <-ctx.Done():
		return Fetch{}, ctx.Err()
	case res := <-ch:
		f, _ := res.Val.(Fetch)
		if !leader {
			f.Requests = 0
		}
		return f, res.Err
	}
}

func (s *Source) fetch(ctx context.Context, node string) (Fetch, error) {
	var out Fetch
	seen := make(map[string]struct{})
	nodes := make([]string, 0)
	continuation := ""

	for {
		page, err := s.page(ctx, node, continuation)
		out.Requests++
		if err != nil {
			s.observer.Observe(telemetry.Event{Kind: telemetry.EventRemoteError, Scope: service, Key: node, Err: err})
			return out, err
		}

		for _, link := range page.Links {
			if link.Namespace != types.MainNamespace {
				continue
			}
			if _, dup := seen[link.Title]; dup {
				continue
			}
			seen[link.Title] = struct{}{}
			nodes = append(nodes, link.Title)
		}

		if page.Continue == "" {
			break
		}
		continuation = page.Continue
	}

	s.neighbors.Set(node, nodes)
	s.logger.Debug("fetched neighbors", "node", node, "neighbors", len(nodes), "requests", out.Requests)
	out.Nodes = nodes
	return out, nil
}

func (s *Source) page(ctx context.Context, node, continuation string) (types.LinkPage, error) {
	s.observer.Observe(telemetry.Event{Kind: telemetry.EventRemoteCall, Scope: service, Key: node})

	call := func(ctx context.Context) (types.LinkPage, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.pager.FetchLinks(ctx, node, continuation)
	}

	var (
		page types.LinkPage
		err  error
	)
	if s.limiter != nil {
		page, err = limiter.Run(ctx, s.limiter, call)
	} else {
		page, err = call(ctx)
	}
	if err == nil {
		return page, nil
	}
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrRemoteFetch) {
		return types.LinkPage{}, err
	}
	return types.LinkPage{}, types.NewRemoteFetchError(service, "fetch", node, 0, err)
}
