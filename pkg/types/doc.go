// Package types defines the data and transport types shared across linkpath.
//
// This package contains:
//   - Link, LinkPage: one page of outgoing links from the edge transport
//   - Claims: structured statements about an external entity
//   - LinkPager, EntityLookup, ClaimsLookup: the remote transports consumed
//     by the edge source and the classifier
//   - RemoteFetchError, NotFoundError, ConfigurationError: the error taxonomy
//
// # Errors
//
// Every typed error supports errors.Is against its sentinel:
//
//	if errors.Is(err, types.ErrNotFound) {
//	    // the page does not exist
//	}
package types
