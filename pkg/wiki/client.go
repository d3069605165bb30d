// Package wiki implements the remote transports against the MediaWiki
// action API and the Wikidata entity API.
//
// Client satisfies types.LinkPager, types.EntityLookup and
// types.ClaimsLookup, and resolves user-supplied titles to canonical ones.
// Requests are rate limited per service, retried on transient failures and
// guarded by a circuit breaker that raises an alert when it opens.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soundprediction/linkpath/pkg/alert"
	"github.com/soundprediction/linkpath/pkg/config"
	"github.com/soundprediction/linkpath/pkg/types"
)

const (
	serviceWiki     = "wikipedia"
	serviceWikidata = "wikidata"
)

// Options configures a Client. Zero durations fall back to 20s for links,
// 15s for bulk lookups and 10s for redirect resolution.
type Options struct {
	APIURL            string
	WikidataURL       string
	UserAgent         string
	LinksTimeout      time.Duration
	PagePropsTimeout  time.Duration
	ResolveTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	Retry             RetryConfig
	CircuitBreaker    config.CircuitBreakerConfig
	Alerter           alert.Alerter
	HTTPClient        HTTPClient
	Logger            *slog.Logger
}

// OptionsFromConfig builds Options from the application configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		APIURL:            cfg.Wiki.APIURL,
		WikidataURL:       cfg.Wiki.WikidataURL,
		UserAgent:         cfg.Wiki.UserAgent,
		LinksTimeout:      cfg.Wiki.LinksTimeout,
		PagePropsTimeout:  cfg.Wiki.PagePropsTimeout,
		ResolveTimeout:    cfg.Wiki.ResolveTimeout,
		RequestsPerSecond: cfg.Wiki.RequestsPerSecond,
		Burst:             cfg.Wiki.Burst,
		Retry: RetryConfig{
			MaxRetries:   cfg.Wiki.MaxRetries,
			InitialDelay: cfg.Wiki.InitialBackoff,
			MaxDelay:     cfg.Wiki.MaxBackoff,
		},
		CircuitBreaker: cfg.CircuitBreaker,
	}
}

// Client talks to MediaWiki and Wikidata.
type Client struct {
	wiki             *transport
	wikidata         *transport
	linksTimeout     time.Duration
	pagePropsTimeout time.Duration
	resolveTimeout   time.Duration
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = "https://en.wikipedia.org/w/api.php"
	}
	if opts.WikidataURL == "" {
		opts.WikidataURL = "https://www.wikidata.org/w/api.php"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "linkpath/1.0"
	}
	if opts.LinksTimeout <= 0 {
		opts.LinksTimeout = 20 * time.Second
	}
	if opts.PagePropsTimeout <= 0 {
		opts.PagePropsTimeout = 15 * time.Second
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	settings := func(service, endpoint string) transportSettings {
		return transportSettings{
			service:           service,
			endpoint:          endpoint,
			client:            opts.HTTPClient,
			userAgent:         opts.UserAgent,
			requestsPerSecond: opts.RequestsPerSecond,
			burst:             opts.Burst,
			retry:             opts.Retry,
			circuitBreaker:    opts.CircuitBreaker,
			alerter:           opts.Alerter,
			logger:            opts.Logger,
		}
	}

	return &Client{
		wiki:             newTransport(settings(serviceWiki, opts.APIURL)),
		wikidata:         newTransport(settings(serviceWikidata, opts.WikidataURL)),
		linksTimeout:     opts.LinksTimeout,
		pagePropsTimeout: opts.PagePropsTimeout,
		resolveTimeout:   opts.ResolveTimeout,
	}
}

type fromTo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type queryPage struct {
	Title   string `json:"title"`
	Missing bool   `json:"missing"`
	Invalid bool   `json:"invalid"`
	Links   []struct {
		Ns    int    `json:"ns"`
		Title string `json:"title"`
	} `json:"links"`
	PageProps struct {
		WikibaseItem string `json:"wikibase_item"`
	} `json:"pageprops"`
}

type queryResponse struct {
	envelope
	Continue map[string]string `json:"continue"`
	Query    struct {
		Normalized []fromTo    `json:"normalized"`
		Redirects  []fromTo    `json:"redirects"`
		Pages      []queryPage `json:"pages"`
	} `json:"query"`
}

// canonical follows title through the normalization and redirect tables of
// the response.
func (r *queryResponse) canonical(title string) string {
	for _, n := range r.Query.Normalized {
		if n.From == title {
			title = n.To
			break
		}
	}
	for hops := 0; hops <= len(r.Query.Redirects); hops++ {
		next := ""
		for _, rd := range r.Query.Redirects {
			if rd.From == title {
				next = rd.To
				break
			}
		}
		if next == "" || next == title {
			break
		}
		title = next
	}
	return title
}

func queryParams(kv ...string) url.Values {
	v := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

// FetchLinks implements types.LinkPager. The continuation is the API's
// continue object encoded as a query string.
func (c *Client) FetchLinks(ctx context.Context, node string, continuation string) (types.LinkPage, error) {
	params := queryParams(
		"prop", "links",
		"titles", node,
		"plnamespace", "0",
		"pllimit", "max",
	)
	if continuation != "" {
		extra, err := url.ParseQuery(continuation)
		if err != nil {
			return types.LinkPage{}, types.NewRemoteFetchError(serviceWiki, "links", node, 0, fmt.Errorf("invalid continuation: %w", err))
		}
		for k, v := range extra {
			params[k] = v
		}
	}

	var resp queryResponse
	if err := c.wiki.get(ctx, "links", node, c.linksTimeout, params, &resp); err != nil {
		return types.LinkPage{}, err
	}

	var page types.LinkPage
	for _, p := range resp.Query.Pages {
		if p.Missing || p.Invalid {
			return types.LinkPage{}, types.NewNotFoundError(node)
		}
		for _, l := range p.Links {
			page.Links = append(page.Links, types.Link{Title: l.Title, Namespace: l.Ns})
		}
	}
	if len(resp.Continue) > 0 {
		next := url.Values{}
		for k, v := range resp.Continue {
			next.Set(k, v)
		}
		page.Continue = next.Encode()
	}
	return page, nil
}

// LookupEntities implements types.EntityLookup using page props. Titles are
// mapped back through normalization and redirects, so the result is keyed
// by the titles given.
func (c *Client) LookupEntities(ctx context.Context, nodes []string) (map[string]string, error) {
	if len(nodes) == 0 {
		return map[string]string{}, nil
	}
	key := fmt.Sprintf("%d titles", len(nodes))
	params := queryParams(
		"prop", "pageprops",
		"ppprop", "wikibase_item",
		"redirects", "1",
		"titles", strings.Join(nodes, "|"),
	)

	var resp queryResponse
	if err := c.wiki.get(ctx, "pageprops", key, c.pagePropsTimeout, params, &resp); err != nil {
		return nil, err
	}

	byTitle := make(map[string]string, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		if p.PageProps.WikibaseItem != "" {
			byTitle[p.Title] = p.PageProps.WikibaseItem
		}
	}

	out := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if id, ok := byTitle[resp.canonical(n)]; ok {
			out[n] = id
		}
	}
	return out, nil
}

// Resolve returns the canonical title of alias after normalization and
// redirects. It fails with *types.NotFoundError when no such page exists.
func (c *Client) Resolve(ctx context.Context, alias string) (string, error) {
	if strings.TrimSpace(alias) == "" {
		return "", types.NewNotFoundError(alias)
	}
	params := queryParams(
		"titles", alias,
		"redirects", "1",
	)

	var resp queryResponse
	if err := c.wiki.get(ctx, "resolve", alias, c.resolveTimeout, params, &resp); err != nil {
		return "", err
	}
	if len(resp.Query.Pages) == 0 {
		return "", types.NewNotFoundError(alias)
	}
	p := resp.Query.Pages[0]
	if p.Missing || p.Invalid {
		return "", types.NewNotFoundError(alias)
	}
	return p.Title, nil
}

type entitiesResponse struct {
	envelope
	Entities map[string]struct {
		ID      string  `json:"id"`
		Missing *string `json:"missing"`
		Claims  map[string][]struct {
			Mainsnak struct {
				Datavalue struct {
					Value json.RawMessage `json:"value"`
				} `json:"datavalue"`
			} `json:"mainsnak"`
		} `json:"claims"`
	} `json:"entities"`
}

// LookupClaims implements types.ClaimsLookup with wbgetentities. Entity
// valued claims are reported by their ids and string valued claims verbatim;
// other value types are skipped.
func (c *Client) LookupClaims(ctx context.Context, ids []string) (map[string]types.Claims, error) {
	if len(ids) == 0 {
		return map[string]types.Claims{}, nil
	}
	key := fmt.Sprintf("%d ids", len(ids))
	params := url.Values{
		"action": {"wbgetentities"},
		"ids":    {strings.Join(ids, "|")},
		"props":  {"claims"},
		"format": {"json"},
	}

	var resp entitiesResponse
	if err := c.wikidata.get(ctx, "claims", key, c.pagePropsTimeout, params, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]types.Claims, len(resp.Entities))
	for id, ent := range resp.Entities {
		if ent.Missing != nil {
			continue
		}
		claims := make(types.Claims, len(ent.Claims))
		for prop, statements := range ent.Claims {
			for _, st := range statements {
				if v, ok := claimValue(st.Mainsnak.Datavalue.Value); ok {
					claims[prop] = append(claims[prop], v)
				}
			}
		}
		out[id] = claims
	}
	return out, nil
}

func claimValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var entity struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &entity); err == nil && entity.ID != "" {
		return entity.ID, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return "", false
}
