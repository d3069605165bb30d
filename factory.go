package linkpath

import (
	"fmt"
	"log/slog"

	"github.com/soundprediction/linkpath/pkg/alert"
	"github.com/soundprediction/linkpath/pkg/cache"
	"github.com/soundprediction/linkpath/pkg/config"
	"github.com/soundprediction/linkpath/pkg/fixture"
	"github.com/soundprediction/linkpath/pkg/telemetry"
	"github.com/soundprediction/linkpath/pkg/types"
	"github.com/soundprediction/linkpath/pkg/wiki"
)

// NewFromConfig builds a Client from the application configuration: the
// cache backend and TTLs, the live wiki transport or a fixture graph, and
// the search and classifier limits.
func NewFromConfig(cfg *config.Config, observer telemetry.Observer, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := openStore(cfg.Cache.Backend, logger)
	if err != nil {
		return nil, err
	}
	c := cache.New(
		cache.WithStore(store),
		cache.WithTTL(cache.NamespaceNeighbors, cfg.Cache.NeighborsTTL),
		cache.WithTTL(cache.NamespaceExternalID, cfg.Cache.ExternalIDTTL),
		cache.WithTTL(cache.NamespaceClassification, cfg.Cache.ClassificationTTL),
		cache.WithObserver(observer),
		cache.WithLogger(logger),
	)

	var (
		transport Transport
		resolver  Resolver
	)
	if cfg.Wiki.Fixture != "" {
		graph, err := fixture.LoadFile(cfg.Wiki.Fixture)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		t := fixture.New(graph)
		transport, resolver = t, t
		logger.Info("serving fixture graph", "path", cfg.Wiki.Fixture)
	} else {
		opts := wiki.OptionsFromConfig(cfg)
		opts.Alerter = alert.New(cfg.Alert, logger)
		opts.Logger = logger
		w := wiki.NewClient(opts)
		transport, resolver = w, w
	}

	client, err := NewClient(transport, resolver, c, &Config{
		MaxDepth:              cfg.Search.MaxDepth,
		LayerConcurrency:      cfg.Search.LayerConcurrency,
		ChunkSize:             cfg.Classifier.ChunkSize,
		ClassifierConcurrency: cfg.Classifier.Concurrency,
		ClassifierTimeout:     cfg.Classifier.Timeout,
		LinksTimeout:          cfg.Wiki.LinksTimeout,
		Observer:              observer,
		NormalizeTitles:       true,
	}, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return client, nil
}

func openStore(backend string, logger *slog.Logger) (cache.Store, error) {
	switch backend {
	case "", "memory":
		return cache.NewMemoryStore(), nil
	case "badger":
		store, err := cache.OpenBadgerStore(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger cache: %w", err)
		}
		return store, nil
	default:
		return nil, types.NewConfigurationError("cache backend", fmt.Sprintf("unknown backend %q", backend))
	}
}
