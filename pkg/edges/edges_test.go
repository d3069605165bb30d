package edges

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soundprediction/linkpath/pkg/cache"
	"github.com/soundprediction/linkpath/pkg/fixture"
	"github.com/soundprediction/linkpath/pkg/limiter"
	"github.com/soundprediction/linkpath/pkg/telemetry"
	"github.com/soundprediction/linkpath/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(t *testing.T, g *fixture.Graph, opts ...Option) (*Source, *fixture.Transport) {
	t.Helper()
	tr := fixture.New(g)
	c := cache.New()
	t.Cleanup(func() { _ = c.Close() })
	return New(tr, c, opts...), tr
}

func TestNeighbors_PaginatesAndFilters(t *testing.T) {
	src, tr := newSource(t, &fixture.Graph{
		PageSize:  2,
		Links:     map[string][]string{"A": {"B", "C", "B", "D", "E"}},
		Auxiliary: map[string][]string{"A": {"Talk:A", "User:X"}},
	})

	f, err := src.Neighbors(context.Background(), "A")
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C", "D", "E"}, f.Nodes)
	assert.Equal(t, 4, f.Requests)
	assert.False(t, f.Cached)
	assert.Equal(t, 4, tr.LinkCalls("A"))
}

func TestNeighbors_CachesCompleteResult(t *testing.T) {
	rec := telemetry.NewRecorder()
	src, tr := newSource(t, &fixture.Graph{Links: map[string][]string{"A": {"B"}}}, WithObserver(rec))
	ctx := context.Background()

	_, err := src.Neighbors(ctx, "A")
	require.NoError(t, err)

	f, err := src.Neighbors(ctx, "A")
	require.NoError(t, err)
	assert.True(t, f.Cached)
	assert.Zero(t, f.Requests)
	assert.Equal(t, []string{"B"}, f.Nodes)
	assert.Equal(t, 1, tr.LinkCalls("A"))
	assert.Equal(t, 1, rec.Count(telemetry.EventRemoteCall, "links"))
}

func TestNeighbors_LeafIsCached(t *testing.T) {
	src, tr := newSource(t, &fixture.Graph{})
	ctx := context.Background()

	f, err := src.Neighbors(ctx, "Leaf")
	require.NoError(t, err)
	assert.Empty(t, f.Nodes)

	f, err = src.Neighbors(ctx, "Leaf")
	require.NoError(t, err)
	assert.True(t, f.Cached)
	assert.Empty(t, f.Nodes)
	assert.Equal(t, 1, tr.LinkCalls("Leaf"))
}

func TestNeighbors_MidPaginationFailureIsNotCached(t *testing.T) {
	src, tr := newSource(t, &fixture.Graph{
		PageSize: 1,
		Links:    map[string][]string{"A": {"B", "C", "D"}},
	})
	tr.FailLinksAfterPages("A", 1)
	ctx := context.Background()

	f, err := src.Neighbors(ctx, "A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemoteFetch))
	assert.Equal(t, 2, f.Requests)

	_, err = src.Neighbors(ctx, "A")
	require.Error(t, err)
	assert.Equal(t, 4, tr.LinkCalls("A"), "failed fetches must not be cached")
}

func TestNeighbors_NotFound(t *testing.T) {
	src, tr := newSource(t, &fixture.Graph{Missing: []string{"Ghost"}})

	_, err := src.Neighbors(context.Background(), "Ghost")
	require.Error(t, err)

	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Ghost", nf.Node)

	_, _ = src.Neighbors(context.Background(), "Ghost")
	assert.Equal(t, 2, tr.LinkCalls("Ghost"))
}

func TestNeighbors_TimeoutIsRemoteFailure(t *testing.T) {
	src, tr := newSource(t, &fixture.Graph{Links: map[string][]string{"A": {"B"}}}, WithTimeout(20*time.Millisecond))
	tr.SetDelay(time.Second)

	_, err := src.Neighbors(context.Background(), "A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemoteFetch))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNeighbors_CallerCancellation(t *testing.T) {
	src, tr := newSource(t, &fixture.Graph{Links: map[string][]string{"A": {"B"}}})
	tr.SetDelay(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := src.Neighbors(ctx, "A")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, types.ErrRemoteFetch))

	// The detached fetch still completes and fills the cache.
	assert.Eventually(t, func() bool {
		f, err := src.Neighbors(context.Background(), "A")
		return err == nil && f.Cached
	}, time.Second, 20*time.Millisecond)
}

func TestNeighbors_ConcurrentCallersShareFetch(t *testing.T) {
	src, tr := newSource(t, &fixture.Graph{Links: map[string][]string{"A": {"B", "C"}}})
	tr.SetDelay(50 * time.Millisecond)

	const callers = 8
	var wg sync.WaitGroup
	requests := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := src.Neighbors(context.Background(), "A")
			assert.NoError(t, err)
			assert.Equal(t, []string{"B", "C"}, f.Nodes)
			requests[i] = f.Requests
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range requests {
		total += r
	}
	assert.Equal(t, 1, tr.LinkCalls("A"))
	assert.Equal(t, 1, total, "only one caller is charged for the shared fetch")
}

func TestNeighbors_LimiterBoundsRequests(t *testing.T) {
	lim := limiter.New(2)
	links := map[string][]string{}
	nodes := []string{"A", "B", "C", "D", "E", "F"}
	for _, n := range nodes {
		links[n] = []string{"X"}
	}
	src, tr := newSource(t, &fixture.Graph{Links: links}, WithLimiter(lim))
	tr.SetDelay(20 * time.Millisecond)

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_, err := src.Neighbors(context.Background(), n)
			assert.NoError(t, err)
		}(n)
	}
	wg.Wait()

	assert.LessOrEqual(t, lim.Peak(), 2)
	assert.Equal(t, len(nodes), tr.TotalLinkCalls())
}
