package search

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/linkpath/pkg/classify"
	"github.com/soundprediction/linkpath/pkg/edges"
	"github.com/soundprediction/linkpath/pkg/telemetry"
	"github.com/soundprediction/linkpath/pkg/types"
)

var tracer = otel.Tracer("linkpath.search")

// NeighborSource resolves a node to its neighbors. *edges.Source implements it.
type NeighborSource interface {
	Neighbors(ctx context.Context, node string) (edges.Fetch, error)
}

// Classifier decides which nodes may appear inside a filtered path.
// *classify.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, nodes []string) (map[string]bool, classify.Report, error)
}

// Engine runs breadth-first shortest path searches over a lazily fetched
// graph. An Engine holds no per-search state and is safe for concurrent use.
type Engine struct {
	source           NeighborSource
	classifier       Classifier
	layerConcurrency int
	observer         telemetry.Observer
	logger           *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier enables filtered searches.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithLayerConcurrency sets how many frontier nodes are fetched at once.
func WithLayerConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.layerConcurrency = n
		}
	}
}

// WithObserver sets the observer receiving search events.
func WithObserver(o telemetry.Observer) Option {
	return func(e *Engine) { e.observer = telemetry.OrNop(o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine expanding nodes through source.
func NewEngine(source NeighborSource, opts ...Option) *Engine {
	e := &Engine{
		source:           source,
		layerConcurrency: DefaultLayerConcurrency,
		observer:         telemetry.Nop(),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShortestPath finds a minimum-length path from start to target.
func (e *Engine) ShortestPath(ctx context.Context, start, target string, maxDepth int) (*Result, error) {
	return e.Find(ctx, Query{Start: start, Target: target, MaxDepth: maxDepth})
}

// ShortestFilteredPath finds a minimum-length path from start to target whose
// intermediate nodes all satisfy the classifier.
func (e *Engine) ShortestFilteredPath(ctx context.Context, start, target string, maxDepth int) (*Result, error) {
	return e.Find(ctx, Query{Start: start, Target: target, MaxDepth: maxDepth, Filtered: true})
}

// Find runs q. An invalid query fails with *types.ConfigurationError before
// any remote call. The context's error is returned as is; every fetch or
// classification failure, including one on the start node, is absorbed and
// counted in the Result's Stats.
func (e *Engine) Find(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Filtered && e.classifier == nil {
		return nil, types.NewConfigurationError("classifier", "required for filtered search")
	}

	ctx, span := tracer.Start(ctx, "search.Find",
		trace.WithAttributes(
			attribute.String("start", q.Start),
			attribute.String("target", q.Target),
			attribute.Int("max_depth", q.MaxDepth),
			attribute.Bool("filtered", q.Filtered),
		),
	)
	defer span.End()
	began := time.Now()

	s := &state{engine: e, query: q, visited: map[string]struct{}{q.Start: {}}}
	res, err := s.run(ctx)
	elapsed := time.Since(began)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.observer.Observe(telemetry.Event{Kind: telemetry.EventSearchDone, Outcome: "error", Duration: elapsed, Err: err})
		return nil, err
	}

	span.SetAttributes(
		attribute.String("reason", string(res.Reason)),
		attribute.Int("nodes_explored", res.Stats.NodesExplored),
		attribute.Int("remote_calls", res.Stats.RemoteCalls),
		attribute.Int("depth_reached", res.Stats.DepthReached),
	)
	span.SetStatus(codes.Ok, "")
	e.observer.Observe(telemetry.Event{
		Kind:     telemetry.EventSearchDone,
		Key:      q.Start + " -> " + q.Target,
		Count:    res.Stats.NodesExplored,
		Outcome:  string(res.Reason),
		Duration: elapsed,
	})
	e.logger.Debug("search completed",
		slog.String("start", q.Start),
		slog.String("target", q.Target),
		slog.String("reason", string(res.Reason)),
		slog.Int("steps", res.Steps()),
		slog.Int("nodes_explored", res.Stats.NodesExplored),
		slog.Int("remote_calls", res.Stats.RemoteCalls),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

// state is the search-scoped part of one Find call.
type state struct {
	engine  *Engine
	query   Query
	visited map[string]struct{}
	stats   Stats
}

type fetched struct {
	edges.Fetch
	err error
}

func (s *state) run(ctx context.Context) (*Result, error) {
	if s.query.Start == s.query.Target {
		return &Result{Path: []string{s.query.Start}, Found: true, Reason: ReasonFound}, nil
	}

	frontier := []path{{s.query.Start}}
	for depth := 0; ; depth++ {
		if depth >= s.query.MaxDepth {
			return s.result(nil, ReasonDepthLimit), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		layerCtx, span := tracer.Start(ctx, "search.layer",
			trace.WithAttributes(
				attribute.Int("depth", depth),
				attribute.Int("frontier", len(frontier)),
			),
		)
		var (
			next  []path
			found path
			err   error
		)
		if s.query.Filtered {
			next, found, err = s.expandFiltered(layerCtx, frontier)
		} else {
			next, found, err = s.expandPlain(layerCtx, frontier)
		}
		span.SetAttributes(attribute.Int("next", len(next)))
		span.End()

		if err != nil {
			return nil, err
		}
		if found != nil {
			return s.result(found, ReasonFound), nil
		}
		if len(next) == 0 {
			return s.result(nil, ReasonExhausted), nil
		}
		s.stats.DepthReached = depth + 1
		frontier = next
	}
}

// expandPlain expands one layer, stopping at the first path that reaches the
// target in frontier order.
func (s *state) expandPlain(ctx context.Context, frontier []path) ([]path, path, error) {
	var next []path
	for lo := 0; lo < len(frontier); lo += s.engine.layerConcurrency {
		window := frontier[lo:min(lo+s.engine.layerConcurrency, len(frontier))]
		results, err := s.fetchWindow(ctx, window)
		if err != nil {
			return nil, nil, err
		}
		for i, p := range window {
			if results[i].err != nil {
				continue
			}
			for _, n := range results[i].Nodes {
				if n == s.query.Target {
					return nil, p.extend(n), nil
				}
				if s.visit(n) {
					next = append(next, p.extend(n))
				}
			}
		}
	}
	return next, nil, nil
}

// expandFiltered expands one layer in two phases. Collect fetches the
// frontier and gathers the distinct unvisited neighbors, remembering the
// first path that reached each. Filter classifies that union with a single
// Classify call and admits the nodes classified true. The target is
// admitted without classification.
func (s *state) expandFiltered(ctx context.Context, frontier []path) ([]path, path, error) {
	parents := make(map[string]path)
	var union []string

	for lo := 0; lo < len(frontier); lo += s.engine.layerConcurrency {
		window := frontier[lo:min(lo+s.engine.layerConcurrency, len(frontier))]
		results, err := s.fetchWindow(ctx, window)
		if err != nil {
			return nil, nil, err
		}
		for i, p := range window {
			if results[i].err != nil {
				continue
			}
			for _, n := range results[i].Nodes {
				if n == s.query.Target {
					return nil, p.extend(n), nil
				}
				if _, seen := s.visited[n]; seen {
					continue
				}
				if _, seen := parents[n]; seen {
					continue
				}
				parents[n] = p
				union = append(union, n)
			}
		}
	}
	if len(union) == 0 {
		return nil, nil, nil
	}

	verdicts, report, err := s.engine.classifier.Classify(ctx, union)
	s.stats.RemoteCalls += report.Requests
	s.stats.FailedChunks += report.FailedChunks
	s.stats.CacheHits += report.CacheHits
	if err != nil {
		return nil, nil, err
	}

	var next []path
	for _, n := range union {
		if verdicts[n] && s.visit(n) {
			next = append(next, parents[n].extend(n))
		}
	}
	return next, nil, nil
}

// fetchWindow fetches the neighbors of every path's last node concurrently
// and accounts for them. Failures are recorded on the result and counted;
// only the context's error is returned.
func (s *state) fetchWindow(ctx context.Context, window []path) ([]fetched, error) {
	results := make([]fetched, len(window))
	var g errgroup.Group
	for i, p := range window {
		g.Go(func() error {
			f, err := s.engine.source.Neighbors(ctx, p.last())
			results[i] = fetched{Fetch: f, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, p := range window {
		r := results[i]
		s.stats.NodesExplored++
		s.stats.RemoteCalls += r.Requests
		if r.Cached {
			s.stats.CacheHits++
		}
		if r.err == nil {
			continue
		}
		s.stats.FailedFetches++
		s.engine.observer.Observe(telemetry.Event{Kind: telemetry.EventFetchSkipped, Scope: "links", Key: p.last(), Err: r.err})
		s.engine.logger.Warn("skipping node after failed fetch", "node", p.last(), "error", r.err)
	}
	return results, nil
}

// visit marks node visited and reports whether it was new.
func (s *state) visit(node string) bool {
	if _, seen := s.visited[node]; seen {
		return false
	}
	s.visited[node] = struct{}{}
	return true
}

func (s *state) result(p path, reason Reason) *Result {
	res := &Result{Reason: reason, Stats: s.stats}
	if p != nil {
		res.Path = []string(p)
		res.Found = true
		res.Stats.DepthReached = len(p) - 1
	}
	return res
}
