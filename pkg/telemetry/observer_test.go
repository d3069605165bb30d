package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsByKindAndScope(t *testing.T) {
	rec := NewRecorder()
	rec.Observe(Event{Kind: EventCacheHit, Scope: "neighbors"})
	rec.Observe(Event{Kind: EventCacheHit, Scope: "external-id"})
	rec.Observe(Event{Kind: EventCacheMiss, Scope: "neighbors"})

	assert.Equal(t, 2, rec.Count(EventCacheHit, ""))
	assert.Equal(t, 1, rec.Count(EventCacheHit, "neighbors"))
	assert.Equal(t, 1, rec.Count(EventCacheMiss, "neighbors"))
	assert.Len(t, rec.Events(), 3)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestRecorder_ConcurrentObserve(t *testing.T) {
	rec := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Observe(Event{Kind: EventRemoteCall, Scope: "wiki"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, rec.Count(EventRemoteCall, "wiki"))
}

func TestMulti_SkipsNilAndFansOut(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	obs := Multi(a, nil, b)
	obs.Observe(Event{Kind: EventChunkFailed, Scope: "external-id", Count: 3})

	assert.Equal(t, 1, a.Count(EventChunkFailed, ""))
	assert.Equal(t, 1, b.Count(EventChunkFailed, ""))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	rec := NewRecorder()
	assert.Same(t, rec, OrNop(rec))
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	p.Observe(Event{Kind: EventCacheHit, Scope: "neighbors"})
	p.Observe(Event{Kind: EventCacheMiss, Scope: "neighbors"})
	p.Observe(Event{Kind: EventCacheMiss, Scope: "neighbors"})
	p.Observe(Event{Kind: EventRemoteCall, Scope: "wiki"})
	p.Observe(Event{Kind: EventRemoteError, Scope: "wiki", Err: errors.New("boom")})
	p.Observe(Event{Kind: EventFetchSkipped, Key: "A"})
	p.Observe(Event{Kind: EventSearchDone, Outcome: "found", Duration: 20 * time.Millisecond})

	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("neighbors", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("neighbors", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.remoteCalls.WithLabelValues("wiki")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.remoteErrors.WithLabelValues("wiki")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.absorbed.WithLabelValues("fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.searches.WithLabelValues("found")))

	// Registering twice on the same registry must fail.
	_, err = NewPrometheusObserver(reg)
	assert.Error(t, err)
}
