package linkpath

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/linkpath/pkg/cache"
	"github.com/soundprediction/linkpath/pkg/classify"
	"github.com/soundprediction/linkpath/pkg/edges"
	"github.com/soundprediction/linkpath/pkg/limiter"
	"github.com/soundprediction/linkpath/pkg/search"
	"github.com/soundprediction/linkpath/pkg/telemetry"
	"github.com/soundprediction/linkpath/pkg/types"
	"github.com/soundprediction/linkpath/pkg/wiki"
)

// Finder is the main interface for finding connections between pages.
type Finder interface {
	// FindConnection resolves both titles to canonical pages and searches
	// for a shortest link path between them.
	FindConnection(ctx context.Context, req Request) (*Connection, error)

	// Resolve returns the canonical title of a page.
	Resolve(ctx context.Context, title string) (string, error)

	// Close releases the caches.
	Close() error
}

// Resolver maps a user-supplied title to its canonical page title.
type Resolver interface {
	Resolve(ctx context.Context, alias string) (string, error)
}

// Transport is everything the search needs from the remote services.
type Transport interface {
	types.LinkPager
	types.EntityLookup
	types.ClaimsLookup
}

// Request is one connection query.
type Request struct {
	From string `json:"from"`
	To   string `json:"to"`
	// MaxDepth is the maximum number of links followed, in [0, 10].
	MaxDepth int `json:"max_depth"`
	// PeopleOnly restricts intermediate pages to people.
	PeopleOnly bool `json:"people_only"`
}

// Connection is the answer to a Request.
type Connection struct {
	// From and To are the canonical titles the search ran between.
	From    string         `json:"from"`
	To      string         `json:"to"`
	Result  *search.Result `json:"result"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Config holds configuration for the linkpath client.
type Config struct {
	// MaxDepth is used by callers that do not choose one.
	MaxDepth int
	// LayerConcurrency bounds concurrent neighbor fetches.
	LayerConcurrency int
	// ChunkSize is the classifier bulk request size.
	ChunkSize int
	// ClassifierConcurrency bounds concurrent classifier requests.
	ClassifierConcurrency int
	// ClassifierTimeout bounds one classifier request.
	ClassifierTimeout time.Duration
	// LinksTimeout bounds one links page request.
	LinksTimeout time.Duration
	// Predicate replaces the default "is a person" classification.
	Predicate classify.Predicate
	// Observer receives cache, remote and search events.
	Observer telemetry.Observer
	// NormalizeTitles applies wiki.NormalizeTitle before resolving.
	NormalizeTitles bool
}

// NewDefaultConfig returns a Config with the default search limits.
func NewDefaultConfig() *Config {
	return &Config{
		MaxDepth:              search.DefaultMaxDepth,
		LayerConcurrency:      search.DefaultLayerConcurrency,
		ChunkSize:             classify.DefaultChunkSize,
		ClassifierConcurrency: limiter.DefaultConcurrency,
		ClassifierTimeout:     classify.DefaultTimeout,
		LinksTimeout:          edges.DefaultTimeout,
		NormalizeTitles:       true,
	}
}

// Client is the main implementation of the Finder interface.
type Client struct {
	resolver Resolver
	engine   *search.Engine
	cache    *cache.Cache
	config   *Config
	logger   *slog.Logger
}

// NewClient creates a Client searching through transport, resolving titles
// with resolver and caching in c. It returns a *types.ConfigurationError
// for an invalid chunk size.
func NewClient(transport Transport, resolver Resolver, c *cache.Cache, config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	observer := telemetry.OrNop(config.Observer)

	source := edges.New(transport, c,
		edges.WithLimiter(limiter.New(config.LayerConcurrency)),
		edges.WithTimeout(config.LinksTimeout),
		edges.WithObserver(observer),
		edges.WithLogger(logger),
	)

	classifier, err := classify.New(transport, transport, c,
		classify.WithChunkSize(config.ChunkSize),
		classify.WithLimiter(limiter.New(config.ClassifierConcurrency)),
		classify.WithTimeout(config.ClassifierTimeout),
		classify.WithPredicate(config.Predicate),
		classify.WithObserver(observer),
		classify.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	engine := search.NewEngine(source,
		search.WithClassifier(classifier),
		search.WithLayerConcurrency(config.LayerConcurrency),
		search.WithObserver(observer),
		search.WithLogger(logger),
	)

	return &Client{
		resolver: resolver,
		engine:   engine,
		cache:    c,
		config:   config,
		logger:   logger,
	}, nil
}

// Engine returns the underlying search engine.
func (c *Client) Engine() *search.Engine {
	return c.engine
}

// DefaultMaxDepth returns the configured default depth.
func (c *Client) DefaultMaxDepth() int {
	return c.config.MaxDepth
}

// Resolve implements Finder.
func (c *Client) Resolve(ctx context.Context, title string) (string, error) {
	if c.config.NormalizeTitles {
		title = wiki.NormalizeTitle(title)
	}
	return c.resolver.Resolve(ctx, title)
}

// FindConnection implements Finder. Invalid requests fail with
// *types.ConfigurationError before any remote call, unknown titles with
// *types.NotFoundError.
func (c *Client) FindConnection(ctx context.Context, req Request) (*Connection, error) {
	if req.From == "" {
		return nil, types.NewConfigurationError("from", "must not be empty")
	}
	if req.To == "" {
		return nil, types.NewConfigurationError("to", "must not be empty")
	}
	q := search.Query{Start: req.From, Target: req.To, MaxDepth: req.MaxDepth, Filtered: req.PeopleOnly}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		q.Start, err = c.Resolve(gctx, req.From)
		return err
	})
	g.Go(func() (err error) {
		q.Target, err = c.Resolve(gctx, req.To)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Info("searching connection", "from", q.Start, "to", q.Target, "max_depth", q.MaxDepth, "people_only", q.Filtered)

	began := time.Now()
	res, err := c.engine.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Connection{From: q.Start, To: q.Target, Result: res, Elapsed: time.Since(began)}, nil
}

// Close implements Finder.
func (c *Client) Close() error {
	return c.cache.Close()
}
