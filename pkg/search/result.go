package search

import (
	"github.com/soundprediction/linkpath/pkg/types"
)

const (
	// DefaultMaxDepth is the default maximum path length in edges.
	DefaultMaxDepth = 4
	// MaxDepthLimit is the largest accepted maximum path length.
	MaxDepthLimit = 10
	// DefaultLayerConcurrency is the number of frontier nodes fetched at once.
	DefaultLayerConcurrency = 6
)

// Reason explains how a search ended.
type Reason string

const (
	ReasonFound      Reason = "found"
	ReasonExhausted  Reason = "exhausted"
	ReasonDepthLimit Reason = "depth_limit"
)

// Query describes one search.
type Query struct {
	Start  string `json:"start"`
	Target string `json:"target"`
	// MaxDepth is the maximum path length in edges. A target at distance
	// MaxDepth is found; one further away ends with ReasonDepthLimit.
	MaxDepth int `json:"max_depth"`
	// Filtered admits intermediate nodes only when the classifier holds for
	// them. The target is always admitted.
	Filtered bool `json:"filtered"`
}

// Validate checks the query before any remote call is made.
func (q Query) Validate() error {
	if q.Start == "" {
		return types.NewConfigurationError("start", "must not be empty")
	}
	if q.Target == "" {
		return types.NewConfigurationError("target", "must not be empty")
	}
	if q.MaxDepth < 0 || q.MaxDepth > MaxDepthLimit {
		return types.NewConfigurationError("max depth", "must be between 0 and 10")
	}
	return nil
}

// Stats describes the work done by one search.
type Stats struct {
	// NodesExplored is the number of neighbor fetches performed.
	NodesExplored int `json:"nodes_explored"`
	// RemoteCalls is the number of remote requests issued, for neighbors and
	// classification alike.
	RemoteCalls int `json:"remote_calls"`
	// DepthReached is the length in edges of the longest path built.
	DepthReached int `json:"depth_reached"`
	// FailedFetches is the number of neighbor fetches that failed and whose
	// paths were dropped.
	FailedFetches int `json:"failed_fetches"`
	// FailedChunks is the number of classification requests that failed.
	FailedChunks int `json:"failed_chunks"`
	// CacheHits counts neighbor lists and classification keys served from
	// the cache.
	CacheHits int `json:"cache_hits"`
}

// Result is the outcome of a search that did not fail.
type Result struct {
	// Path runs from start to target inclusive; nil unless Found.
	Path   []string `json:"path"`
	Found  bool     `json:"found"`
	Reason Reason   `json:"reason"`
	Stats  Stats    `json:"stats"`
}

// Steps returns the path length in edges, or -1 when nothing was found.
func (r *Result) Steps() int {
	if !r.Found {
		return -1
	}
	return len(r.Path) - 1
}

// path is a non-repeating node sequence starting at the search start.
type path []string

func (p path) last() string { return p[len(p)-1] }

func (p path) extend(node string) path {
	next := make(path, len(p), len(p)+1)
	copy(next, p)
	return append(next, node)
}
