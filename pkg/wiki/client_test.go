package wiki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/linkpath/pkg/config"
	"github.com/soundprediction/linkpath/pkg/types"
)

type recordingAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingAlerter) Alert(subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subjects)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) (*Client, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	opts := Options{
		APIURL:      srv.URL + "/w/api.php",
		WikidataURL: srv.URL + "/wikidata/api.php",
		UserAgent:   "linkpath-test",
		Retry:       RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		HTTPClient:  srv.Client(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewClient(opts), &calls
}

func TestFetchLinks_FollowsContinuation(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "linkpath-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "links", q.Get("prop"))
		assert.Equal(t, "0", q.Get("plnamespace"))
		assert.Equal(t, "Kevin Bacon", q.Get("titles"))

		if q.Get("plcontinue") == "" {
			fmt.Fprint(w, `{"continue":{"plcontinue":"123|0|Footloose","continue":"||"},
				"query":{"pages":[{"title":"Kevin Bacon","links":[{"ns":0,"title":"Apollo 13"},{"ns":0,"title":"Diner"}]}]}}`)
			return
		}
		assert.Equal(t, "123|0|Footloose", q.Get("plcontinue"))
		assert.Equal(t, "||", q.Get("continue"))
		fmt.Fprint(w, `{"query":{"pages":[{"title":"Kevin Bacon","links":[{"ns":0,"title":"Footloose"}]}]}}`)
	})
	ctx := context.Background()

	first, err := client.FetchLinks(ctx, "Kevin Bacon", "")
	require.NoError(t, err)
	assert.Equal(t, []types.Link{{Title: "Apollo 13"}, {Title: "Diner"}}, first.Links)
	require.NotEmpty(t, first.Continue)

	second, err := client.FetchLinks(ctx, "Kevin Bacon", first.Continue)
	require.NoError(t, err)
	assert.Equal(t, []types.Link{{Title: "Footloose"}}, second.Links)
	assert.Empty(t, second.Continue)
	assert.EqualValues(t, 2, atomic.LoadInt64(calls))
}

func TestFetchLinks_MissingPage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"query":{"pages":[{"title":"Nope","missing":true}]}}`)
	})

	_, err := client.FetchLinks(context.Background(), "Nope", "")
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Nope", nf.Node)
}

func TestTransport_RetriesServerErrors(t *testing.T) {
	var n int64
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&n, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"query":{"pages":[{"title":"A","links":[{"ns":0,"title":"B"}]}]}}`)
	})

	page, err := client.FetchLinks(context.Background(), "A", "")
	require.NoError(t, err)
	assert.Len(t, page.Links, 1)
	assert.EqualValues(t, 2, atomic.LoadInt64(calls))
}

func TestTransport_DoesNotRetryClientErrors(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.FetchLinks(context.Background(), "A", "")
	require.Error(t, err)

	var rf *types.RemoteFetchError
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, http.StatusBadRequest, rf.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestTransport_GivesUpAfterMaxRetries(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchLinks(context.Background(), "A", "")
	assert.True(t, errors.Is(err, types.ErrRemoteFetch))
	assert.EqualValues(t, 3, atomic.LoadInt64(calls))
}

func TestTransport_APIErrorIsRemoteFailure(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":"toomanyvalues","info":"Too many values supplied"}}`)
	})

	_, err := client.LookupEntities(context.Background(), []string{"A"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "toomanyvalues", apiErr.Code)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestTransport_CircuitBreakerOpensAndAlerts(t *testing.T) {
	alerter := &recordingAlerter{}
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *Options) {
		o.Retry.MaxRetries = 0
		o.Alerter = alerter
		o.CircuitBreaker = config.CircuitBreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         60,
			Timeout:          60,
			ReadyToTripRatio: 0.5,
		}
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.FetchLinks(ctx, "A", "")
		require.Error(t, err)
	}
	assert.EqualValues(t, 3, atomic.LoadInt64(calls))
	assert.Equal(t, 1, alerter.count())

	_, err := client.FetchLinks(ctx, "A", "")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, errors.Is(err, types.ErrRemoteFetch))
	assert.EqualValues(t, 3, atomic.LoadInt64(calls), "open breaker must not reach the server")
}

func TestLookupEntities_MapsNormalizedAndRedirectedTitles(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "pageprops", q.Get("prop"))
		assert.Equal(t, "1", q.Get("redirects"))
		assert.Equal(t, "Kevin_Bacon|Einstein|Paris|Nowhere", q.Get("titles"))
		fmt.Fprint(w, `{"query":{
			"normalized":[{"from":"Kevin_Bacon","to":"Kevin Bacon"}],
			"redirects":[{"from":"Einstein","to":"Albert Einstein"}],
			"pages":[
				{"title":"Kevin Bacon","pageprops":{"wikibase_item":"Q3454165"}},
				{"title":"Albert Einstein","pageprops":{"wikibase_item":"Q937"}},
				{"title":"Paris","pageprops":{"wikibase_item":"Q90"}},
				{"title":"Nowhere","missing":true}
			]}}`)
	})

	ids, err := client.LookupEntities(context.Background(), []string{"Kevin_Bacon", "Einstein", "Paris", "Nowhere"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Kevin_Bacon": "Q3454165",
		"Einstein":    "Q937",
		"Paris":       "Q90",
	}, ids)
}

func TestResolve(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("titles") {
		case "Einstein":
			fmt.Fprint(w, `{"query":{"redirects":[{"from":"Einstein","to":"Albert Einstein"}],"pages":[{"title":"Albert Einstein"}]}}`)
		default:
			fmt.Fprint(w, `{"query":{"pages":[{"title":"Qwzx","missing":true}]}}`)
		}
	})
	ctx := context.Background()

	title, err := client.Resolve(ctx, "Einstein")
	require.NoError(t, err)
	assert.Equal(t, "Albert Einstein", title)

	_, err = client.Resolve(ctx, "Qwzx")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = client.Resolve(ctx, "  ")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestLookupClaims(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/wikidata/api.php", r.URL.Path)
		assert.Equal(t, "wbgetentities", q.Get("action"))
		assert.Equal(t, "Q937|Q90|Q404", q.Get("ids"))
		fmt.Fprint(w, `{"entities":{
			"Q937":{"id":"Q937","claims":{
				"P31":[{"mainsnak":{"datavalue":{"value":{"entity-type":"item","id":"Q5"}}}}],
				"P1559":[{"mainsnak":{"datavalue":{"value":{"text":"Albert Einstein","language":"de"}}}}],
				"P856":[{"mainsnak":{"datavalue":{"value":"https://example.org"}}}]}},
			"Q90":{"id":"Q90","claims":{"P31":[{"mainsnak":{"datavalue":{"value":{"id":"Q515"}}}},{"mainsnak":{}}]}},
			"Q404":{"id":"Q404","missing":""}
		}}`)
	})

	claims, err := client.LookupClaims(context.Background(), []string{"Q937", "Q90", "Q404"})
	require.NoError(t, err)

	require.Len(t, claims, 2)
	assert.True(t, claims["Q937"].Has("P31", "Q5"))
	assert.Equal(t, []string{"https://example.org"}, claims["Q937"]["P856"])
	assert.NotContains(t, claims["Q937"], "P1559")
	assert.Equal(t, []string{"Q515"}, claims["Q90"]["P31"])
}

func TestLookups_EmptyInputMakesNoRequest(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	ids, err := client.LookupEntities(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	claims, err := client.LookupClaims(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, claims)
	assert.Zero(t, atomic.LoadInt64(calls))
}

func TestRetryConfig_Delay(t *testing.T) {
	r := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 200*time.Millisecond, r.delay(2))
	assert.Equal(t, 400*time.Millisecond, r.delay(3))
	assert.Equal(t, time.Second, r.delay(10))
}
