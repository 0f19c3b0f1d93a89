// Package graphql provides the HTTP transport used to talk to the MagicBell
// API: GraphQL queries for feed pages and REST calls for notification actions.
package graphql

import (
	"context"
	"errors"

	"github.com/magicbell-io/magicbell-go/internal/identity"
)

// Error kinds. Every error returned by HTTPClient wraps exactly one of these,
// so callers classify failures with errors.Is.
var (
	// ErrTransport covers network failures, timeouts, unexpected HTTP statuses
	// and GraphQL-level errors reported by the server.
	ErrTransport = errors.New("transport error")
	// ErrAuth covers missing or rejected credentials.
	ErrAuth = errors.New("authentication error")
	// ErrDecode covers responses that could not be mapped to the expected shape.
	ErrDecode = errors.New("decode error")
)

// GraphQLError represents a single error returned in a GraphQL response.
type GraphQLError struct {
	Message string `json:"message"`
}

// Client defines the remote calls available to the feed.
type Client interface {
	// Execute runs a GraphQL query as user and returns the raw "data" field.
	Execute(ctx context.Context, user identity.User, query string, variables map[string]any) ([]byte, error)
	// Do issues a REST request against path (relative to the API root) as
	// user and returns the raw response body.
	Do(ctx context.Context, method, path string, user identity.User) ([]byte, error)
}
