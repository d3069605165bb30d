// Package telemetry provides the observability hook used by the edge source,
// the classifier and the search engine.
//
// Components never print. They report Events to an Observer, so behavior
// under failure can be asserted in tests (Recorder), logged (LogObserver) or
// exported (PrometheusObserver). Observers are combined with Multi.
package telemetry

import (
	"log/slog"
	"sync"
	"time"
)

// EventKind identifies what happened.
type EventKind string

const (
	// EventCacheHit and EventCacheMiss report a cache lookup; Scope is the namespace.
	EventCacheHit  EventKind = "cache_hit"
	EventCacheMiss EventKind = "cache_miss"
	// EventRemoteCall reports one request issued to a remote service; Scope is the service.
	EventRemoteCall EventKind = "remote_call"
	// EventRemoteError reports a failed remote request.
	EventRemoteError EventKind = "remote_error"
	// EventFetchSkipped reports a neighbor fetch failure absorbed by the search.
	EventFetchSkipped EventKind = "fetch_skipped"
	// EventChunkFailed reports a classifier chunk whose members were cached as negative.
	EventChunkFailed EventKind = "chunk_failed"
	// EventSearchDone reports the end of one search; Outcome holds the reason.
	EventSearchDone EventKind = "search_done"
)

// Event is one observation.
type Event struct {
	Kind     EventKind
	Scope    string
	Key      string
	Count    int
	Outcome  string
	Duration time.Duration
	Err      error
}

// Observer receives events. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// Nop returns an Observer that discards everything.
func Nop() Observer { return nopObserver{} }

// OrNop returns o, or a no-op observer when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop()
	}
	return o
}

type multiObserver []Observer

func (m multiObserver) Observe(ev Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}

// Multi fans every event out to each non-nil observer.
func Multi(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe implements Observer.
func (r *Recorder) Observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of all recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded. An empty scope
// matches every scope.
func (r *Recorder) Count(kind EventKind, scope string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind && (scope == "" || ev.Scope == scope) {
			n++
		}
	}
	return n
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogObserver writes events to a slog.Logger. Cache traffic is logged at
// debug level, absorbed failures at warn.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver; a nil logger means slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Observe implements Observer.
func (l *LogObserver) Observe(ev Event) {
	switch ev.Kind {
	case EventCacheHit:
		l.logger.Debug("cache hit", "namespace", ev.Scope, "key", ev.Key)
	case EventCacheMiss:
		l.logger.Debug("cache miss", "namespace", ev.Scope, "key", ev.Key)
	case EventRemoteCall:
		l.logger.Debug("remote call", "service", ev.Scope, "key", ev.Key, "count", ev.Count)
	case EventRemoteError:
		l.logger.Warn("remote call failed", "service", ev.Scope, "key", ev.Key, "error", ev.Err)
	case EventFetchSkipped:
		l.logger.Warn("skipping node after fetch failure", "node", ev.Key, "error", ev.Err)
	case EventChunkFailed:
		l.logger.Warn("classifier chunk failed, caching negative results",
			"stage", ev.Scope, "size", ev.Count, "error", ev.Err)
	case EventSearchDone:
		l.logger.Info("search finished", "outcome", ev.Outcome, "key", ev.Key, "duration", ev.Duration)
	}
}
