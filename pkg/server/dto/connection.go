package dto

import (
	"errors"
	"strings"
)

// MaxTitleLength bounds a page title in a request.
const MaxTitleLength = 255

var (
	// ErrMissingEndpoint is returned when from or to is empty.
	ErrMissingEndpoint = errors.New("missing 'from' or 'to'")
	// ErrTitleTooLong is returned when a title exceeds MaxTitleLength.
	ErrTitleTooLong = errors.New("title exceeds maximum length")
)

// ConnectionRequest is the body of POST /find-connection.
type ConnectionRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	// MaxDepth is optional; nil means the server default.
	MaxDepth   *int `json:"maxDepth,omitempty"`
	PeopleOnly bool `json:"peopleOnly,omitempty"`
}

// Validate checks the required fields.
func (r *ConnectionRequest) Validate() error {
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)
	if r.From == "" || r.To == "" {
		return ErrMissingEndpoint
	}
	if len(r.From) > MaxTitleLength || len(r.To) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// ConnectionFound is returned when a path exists.
type ConnectionFound struct {
	Path      []string `json:"path"`
	Steps     int      `json:"steps"`
	ElapsedMs int64    `json:"elapsed_ms"`
	Stats     Stats    `json:"stats"`
}

// ConnectionMissing is returned when the search ended without a path.
type ConnectionMissing struct {
	Message   string `json:"message"`
	Reason    string `json:"reason"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Stats     Stats  `json:"stats"`
}
