package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/linkpath"
	"github.com/soundprediction/linkpath/pkg/cache"
	"github.com/soundprediction/linkpath/pkg/fixture"
	"github.com/soundprediction/linkpath/pkg/types"
)

const graph = `
links:
  Kevin Bacon: [Footloose, Tom Hanks]
  Tom Hanks: [Meg Ryan]
  Meg Ryan: [Albert Einstein]
aliases:
  Einstein: Albert Einstein
missing: [Nobody]
`

func init() {
	gin.SetMode(gin.TestMode)
}

func newFinder(t *testing.T) *linkpath.Client {
	t.Helper()
	g, err := fixture.Load(strings.NewReader(graph))
	require.NoError(t, err)
	tr := fixture.New(g)
	client, err := linkpath.NewClient(tr, tr, cache.New(), linkpath.NewDefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newRouter(finder ConnectionFinder) *gin.Engine {
	r := gin.New()
	h := NewConnectionHandler(finder, nil)
	health := NewHealthHandler(finder)
	r.POST("/find-connection", h.FindConnection)
	r.GET("/health", health.HealthCheck)
	r.GET("/live", health.LivenessCheck)
	r.GET("/ready", health.ReadinessCheck)
	r.GET("/health/detailed", health.DetailedHealthCheck)
	return r
}

func post(t *testing.T, r http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/find-connection", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestFindConnection_Found(t *testing.T) {
	r := newRouter(newFinder(t))

	w, out := post(t, r, `{"from":"kevin bacon","to":"Einstein"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Kevin Bacon", "Tom Hanks", "Meg Ryan", "Albert Einstein"}, out["path"])
	assert.EqualValues(t, 3, out["steps"])
	assert.Contains(t, out, "elapsed_ms")
	stats, ok := out["stats"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, stats["depth_reached"])
}

func TestFindConnection_NoPath(t *testing.T) {
	r := newRouter(newFinder(t))

	w, out := post(t, r, `{"from":"Kevin Bacon","to":"Einstein","maxDepth":1}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, NoPathMessage, out["message"])
	assert.Equal(t, "depth_limit", out["reason"])
	assert.NotContains(t, out, "path")
}

func TestFindConnection_BadRequests(t *testing.T) {
	r := newRouter(newFinder(t))

	tests := []struct {
		name string
		body string
	}{
		{"missing from", `{"to":"Einstein"}`},
		{"blank to", `{"from":"Kevin Bacon","to":"  "}`},
		{"malformed", `{"from":`},
		{"depth too large", `{"from":"Kevin Bacon","to":"Einstein","maxDepth":11}`},
		{"negative depth", `{"from":"Kevin Bacon","to":"Einstein","maxDepth":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := post(t, r, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", out["error"])
		})
	}
}

func TestFindConnection_PageNotFound(t *testing.T) {
	r := newRouter(newFinder(t))

	w, out := post(t, r, `{"from":"Nobody","to":"Einstein"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Page not found: Nobody", out["error"])
}

type stubFinder struct {
	err error
}

func (s stubFinder) FindConnection(context.Context, linkpath.Request) (*linkpath.Connection, error) {
	return nil, s.err
}

func (s stubFinder) DefaultMaxDepth() int { return 4 }

func TestFindConnection_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"remote", types.NewRemoteFetchError("links", "fetch", "Kevin Bacon", 503, nil), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(stubFinder{err: tt.err})
			w, _ := post(t, r, `{"from":"a","to":"b"}`)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestFindConnection_NilFinder(t *testing.T) {
	r := newRouter(nil)

	w, _ := post(t, r, `{"from":"a","to":"b"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlers_TypedNilFinderIsNotReady(t *testing.T) {
	var client *linkpath.Client
	r := newRouter(client)

	w, out := post(t, r, `{"from":"a","to":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", out["error"])

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
