package types

import "context"

// MainNamespace is the namespace of primary content pages. Links into any
// other namespace (talk pages, templates, categories) are auxiliary.
const MainNamespace = 0

// Link is one outgoing edge reported by the edge transport.
type Link struct {
	Title     string `json:"title" yaml:"title"`
	Namespace int    `json:"ns" yaml:"ns"`
}

// LinkPage is one page of a paginated links response. An empty Continue
// means the listing is complete.
type LinkPage struct {
	Links    []Link
	Continue string
}

// Claims maps a property id (e.g. "P31") to the entity ids it points at.
type Claims map[string][]string

// Has reports whether property holds value among its claims.
func (c Claims) Has(property, value string) bool {
	for _, v := range c[property] {
		if v == value {
			return true
		}
	}
	return false
}

// LinkPager fetches outgoing links of a node one page at a time.
// Implementations return a *NotFoundError when the node does not exist and a
// *RemoteFetchError for transport failures.
type LinkPager interface {
	FetchLinks(ctx context.Context, node string, continuation string) (LinkPage, error)
}

// EntityLookup resolves nodes to external entity ids in bulk. Nodes without
// an entity are either absent from the result or mapped to "".
type EntityLookup interface {
	LookupEntities(ctx context.Context, nodes []string) (map[string]string, error)
}

// ClaimsLookup fetches structured claims for external entity ids in bulk.
// Ids the service does not know are absent from the result.
type ClaimsLookup interface {
	LookupClaims(ctx context.Context, ids []string) (map[string]Claims, error)
}
