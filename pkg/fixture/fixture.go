// Package fixture serves a static graph, loaded from YAML, through the same
// transport interfaces as the live wiki clients. It backs the CLI's offline
// mode and the package tests, and can inject failures and count requests.
//
// Example document:
//
//	page_size: 2
//	links:
//	  A: [B, C]
//	  B: [D]
//	auxiliary:
//	  A: ["Talk:A"]
//	missing: [Ghost]
//	aliases:
//	  Bacon: A
//	entities:
//	  B: Q1
//	claims:
//	  Q1:
//	    P31: [Q5]
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/linkpath/pkg/types"
)

// auxiliaryNamespace is the namespace reported for auxiliary links.
const auxiliaryNamespace = 1

// Graph is the static content served by a Transport.
type Graph struct {
	// Links maps a node to its primary-namespace neighbors, in order.
	Links map[string][]string `yaml:"links"`
	// Auxiliary maps a node to links outside the primary namespace.
	Auxiliary map[string][]string `yaml:"auxiliary"`
	// Missing lists nodes the transport reports as not found.
	Missing []string `yaml:"missing"`
	// Aliases maps redirect titles to canonical ones.
	Aliases map[string]string `yaml:"aliases"`
	// Entities maps nodes to external entity ids.
	Entities map[string]string `yaml:"entities"`
	// Claims maps external ids to their claims.
	Claims map[string]types.Claims `yaml:"claims"`
	// PageSize bounds links per page; zero serves everything in one page.
	PageSize int `yaml:"page_size"`
}

// Load decodes a Graph from YAML.
func Load(r io.Reader) (*Graph, error) {
	var g Graph
	if err := yaml.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode fixture graph: %w", err)
	}
	return &g, nil
}

// LoadFile decodes a Graph from a YAML file.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture graph: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Transport implements types.LinkPager, types.EntityLookup and
// types.ClaimsLookup over a Graph, and resolves aliases. It is safe for
// concurrent use.
type Transport struct {
	graph   *Graph
	missing map[string]bool

	mu             sync.Mutex
	linkCalls      map[string]int
	entityBatches  [][]string
	claimsBatches  [][]string
	failLinks      map[string]error
	failLinksAfter map[string]int
	failEntities   map[string]bool
	failClaims     map[string]bool
	delay          time.Duration
}

// New creates a Transport serving g.
func New(g *Graph) *Transport {
	if g == nil {
		g = &Graph{}
	}
	missing := make(map[string]bool, len(g.Missing))
	for _, m := range g.Missing {
		missing[m] = true
	}
	return &Transport{
		graph:          g,
		missing:        missing,
		linkCalls:      make(map[string]int),
		failLinks:      make(map[string]error),
		failLinksAfter: make(map[string]int),
		failEntities:   make(map[string]bool),
		failClaims:     make(map[string]bool),
	}
}

// FailLinks makes every links request for node fail with a remote error.
func (t *Transport) FailLinks(node string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failLinks[node] = types.NewRemoteFetchError("fixture", "links", node, 503, errors.New("injected failure"))
}

// FailLinksAfterPages lets the first pages of node succeed, then fails.
func (t *Transport) FailLinksAfterPages(node string, pages int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failLinksAfter[node] = pages
}

// FailEntityBatchesContaining fails any entity batch that includes node.
func (t *Transport) FailEntityBatchesContaining(node string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failEntities[node] = true
}

// FailClaimsBatchesContaining fails any claims batch that includes id.
func (t *Transport) FailClaimsBatchesContaining(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failClaims[id] = true
}

// SetDelay makes every request wait d, or until its context ends.
func (t *Transport) SetDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
}

// FetchLinks implements types.LinkPager. The continuation is the index of
// the next page.
func (t *Transport) FetchLinks(ctx context.Context, node string, continuation string) (types.LinkPage, error) {
	t.mu.Lock()
	t.linkCalls[node]++
	page := 0
	if continuation != "" {
		page, _ = strconv.Atoi(continuation)
	}
	failErr := t.failLinks[node]
	after, failsLater := t.failLinksAfter[node]
	t.mu.Unlock()

	if err := t.wait(ctx); err != nil {
		return types.LinkPage{}, types.NewRemoteFetchError("fixture", "links", node, 0, err)
	}
	if failErr != nil {
		return types.LinkPage{}, failErr
	}
	if failsLater && page >= after {
		return types.LinkPage{}, types.NewRemoteFetchError("fixture", "links", node, 500, errors.New("injected failure"))
	}
	if t.missing[node] {
		return types.LinkPage{}, types.NewNotFoundError(node)
	}

	all := make([]types.Link, 0, len(t.graph.Links[node])+len(t.graph.Auxiliary[node]))
	for _, l := range t.graph.Links[node] {
		all = append(all, types.Link{Title: l, Namespace: types.MainNamespace})
	}
	for _, l := range t.graph.Auxiliary[node] {
		all = append(all, types.Link{Title: l, Namespace: auxiliaryNamespace})
	}

	size := t.graph.PageSize
	if size <= 0 {
		return types.LinkPage{Links: all}, nil
	}
	start := page * size
	if start >= len(all) {
		return types.LinkPage{}, nil
	}
	end := start + size
	out := types.LinkPage{Links: all[start:min(end, len(all))]}
	if end < len(all) {
		out.Continue = strconv.Itoa(page + 1)
	}
	return out, nil
}

// LookupEntities implements types.EntityLookup.
func (t *Transport) LookupEntities(ctx context.Context, nodes []string) (map[string]string, error) {
	t.mu.Lock()
	t.entityBatches = append(t.entityBatches, append([]string(nil), nodes...))
	fail := containsAny(t.failEntities, nodes)
	t.mu.Unlock()

	if err := t.wait(ctx); err != nil {
		return nil, types.NewRemoteFetchError("fixture", "entities", fmt.Sprintf("%d nodes", len(nodes)), 0, err)
	}
	if fail {
		return nil, types.NewRemoteFetchError("fixture", "entities", fmt.Sprintf("%d nodes", len(nodes)), 500, errors.New("injected failure"))
	}

	out := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if id, ok := t.graph.Entities[n]; ok {
			out[n] = id
		}
	}
	return out, nil
}

// LookupClaims implements types.ClaimsLookup.
func (t *Transport) LookupClaims(ctx context.Context, ids []string) (map[string]types.Claims, error) {
	t.mu.Lock()
	t.claimsBatches = append(t.claimsBatches, append([]string(nil), ids...))
	fail := containsAny(t.failClaims, ids)
	t.mu.Unlock()

	if err := t.wait(ctx); err != nil {
		return nil, types.NewRemoteFetchError("fixture", "claims", fmt.Sprintf("%d ids", len(ids)), 0, err)
	}
	if fail {
		return nil, types.NewRemoteFetchError("fixture", "claims", fmt.Sprintf("%d ids", len(ids)), 500, errors.New("injected failure"))
	}

	out := make(map[string]types.Claims, len(ids))
	for _, id := range ids {
		if c, ok := t.graph.Claims[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

// Resolve returns the canonical node for alias, also trying the alias with
// underscores read as spaces. A node is known when it has links, appears as
// a link target or has an entity; anything else, and any node listed as
// missing, is *types.NotFoundError.
func (t *Transport) Resolve(ctx context.Context, alias string) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", types.NewRemoteFetchError("fixture", "resolve", alias, 0, err)
	}
	for _, candidate := range []string{alias, strings.ReplaceAll(alias, "_", " ")} {
		node := candidate
		if to, ok := t.graph.Aliases[candidate]; ok {
			node = to
		}
		if t.missing[node] {
			break
		}
		if t.known(node) {
			return node, nil
		}
	}
	return "", types.NewNotFoundError(alias)
}

func (t *Transport) known(node string) bool {
	if _, ok := t.graph.Links[node]; ok {
		return true
	}
	if _, ok := t.graph.Entities[node]; ok {
		return true
	}
	for _, links := range t.graph.Links {
		for _, l := range links {
			if l == node {
				return true
			}
		}
	}
	return false
}

// LinkCalls returns how many links requests were made for node.
func (t *Transport) LinkCalls(node string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.linkCalls[node]
}

// TotalLinkCalls returns how many links requests were made overall.
func (t *Transport) TotalLinkCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.linkCalls {
		total += n
	}
	return total
}

// EntityBatches returns the node batches sent to LookupEntities.
func (t *Transport) EntityBatches() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]string(nil), t.entityBatches...)
}

// ClaimsBatches returns the id batches sent to LookupClaims.
func (t *Transport) ClaimsBatches() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]string(nil), t.claimsBatches...)
}

func (t *Transport) wait(ctx context.Context) error {
	t.mu.Lock()
	d := t.delay
	t.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func containsAny(set map[string]bool, keys []string) bool {
	for _, k := range keys {
		if set[k] {
			return true
		}
	}
	return false
}
