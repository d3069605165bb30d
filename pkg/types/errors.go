package types

import (
	"errors"
	"fmt"
)

// Sentinel errors matched through errors.Is on the typed errors below.
var (
	ErrRemoteFetch   = errors.New("remote fetch failed")
	ErrNotFound      = errors.New("node not found")
	ErrConfiguration = errors.New("invalid configuration")
)

// RemoteFetchError reports a network failure, a timeout or a non-success
// response from one of the remote services.
type RemoteFetchError struct {
	// Service names the remote side, e.g. "wiki" or "wikidata".
	Service string
	// Op is the operation that failed, e.g. "links" or "pageprops".
	Op string
	// Key is the node or chunk description the request was made for.
	Key string
	// StatusCode is the HTTP status when one was received, zero otherwise.
	StatusCode int
	Err        error
}

func (e *RemoteFetchError) Error() string {
	msg := fmt.Sprintf("%s %s %q", e.Service, e.Op, e.Key)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support for RemoteFetchError.
// This allows errors.Is(err, ErrRemoteFetch) and errors.Is(err, &RemoteFetchError{}).
func (e *RemoteFetchError) Is(target error) bool {
	if target == ErrRemoteFetch {
		return true
	}
	_, ok := target.(*RemoteFetchError)
	return ok
}

// NewRemoteFetchError creates a new remote fetch error.
func NewRemoteFetchError(service, op, key string, statusCode int, err error) *RemoteFetchError {
	return &RemoteFetchError{Service: service, Op: op, Key: key, StatusCode: statusCode, Err: err}
}

// NotFoundError reports that the remote source explicitly says a node does
// not exist. It is a distinct outcome from a failed fetch.
type NotFoundError struct {
	Node string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("page not found: %s", e.Node)
}

// Is implements errors.Is support for NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(node string) *NotFoundError {
	return &NotFoundError{Node: node}
}

// ConfigurationError reports an out-of-range or missing parameter. It is
// raised once, at entry, before any remote work starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is implements errors.Is support for ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	if target == ErrConfiguration {
		return true
	}
	_, ok := target.(*ConfigurationError)
	return ok
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}
