package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver turns events into Prometheus counters and histograms.
type PrometheusObserver struct {
	cacheLookups   *prometheus.CounterVec
	remoteCalls    *prometheus.CounterVec
	remoteErrors   *prometheus.CounterVec
	absorbed       *prometheus.CounterVec
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusObserver{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpath_cache_lookups_total",
			Help: "Cache lookups by namespace and result",
		}, []string{"namespace", "result"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpath_remote_calls_total",
			Help: "Requests issued to remote services",
		}, []string{"service"}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpath_remote_errors_total",
			Help: "Failed requests to remote services",
		}, []string{"service"}),
		absorbed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpath_absorbed_failures_total",
			Help: "Per-node and per-chunk failures absorbed without aborting a search",
		}, []string{"kind"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpath_searches_total",
			Help: "Completed searches by outcome",
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkpath_search_duration_seconds",
			Help:    "Search duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"outcome"}),
	}

	collectors := []prometheus.Collector{
		p.cacheLookups, p.remoteCalls, p.remoteErrors, p.absorbed, p.searches, p.searchDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Observe implements Observer.
func (p *PrometheusObserver) Observe(ev Event) {
	switch ev.Kind {
	case EventCacheHit:
		p.cacheLookups.WithLabelValues(ev.Scope, "hit").Inc()
	case EventCacheMiss:
		p.cacheLookups.WithLabelValues(ev.Scope, "miss").Inc()
	case EventRemoteCall:
		p.remoteCalls.WithLabelValues(ev.Scope).Inc()
	case EventRemoteError:
		p.remoteErrors.WithLabelValues(ev.Scope).Inc()
	case EventFetchSkipped:
		p.absorbed.WithLabelValues("fetch").Inc()
	case EventChunkFailed:
		p.absorbed.WithLabelValues("chunk").Inc()
	case EventSearchDone:
		p.searches.WithLabelValues(ev.Outcome).Inc()
		p.searchDuration.WithLabelValues(ev.Outcome).Observe(ev.Duration.Seconds())
	}
}
