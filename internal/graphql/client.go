package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/magicbell-io/magicbell-go/internal/config"
	"github.com/magicbell-io/magicbell-go/internal/identity"
)

const (
	defaultTimeout = 30 * time.Second
	graphqlPath    = "/graphql"

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient is the net/http implementation of Client.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
}

// NewHTTPClient constructs an HTTPClient from the provided MagicBellConfig.
// It returns an error if cfg.URL is empty. When cfg.Timeout is zero or
// negative, a default timeout of 30 seconds is used. An empty API key is
// accepted at construction time but every call will fail with ErrAuth.
func NewHTTPClient(cfg config.MagicBellConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("graphql: URL is required")
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    normalizeBaseURL(cfg.URL),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
	}, nil
}

// normalizeBaseURL trims trailing slashes and a trailing /graphql segment so
// both GraphQL and REST paths can be appended to the result.
func normalizeBaseURL(rawURL string) string {
	u := strings.TrimRight(rawURL, "/")
	u = strings.TrimSuffix(u, graphqlPath)
	return strings.TrimRight(u, "/")
}

// graphqlRequest is the JSON body shape for a GraphQL HTTP request.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the JSON body shape for a GraphQL HTTP response.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Execute sends a GraphQL query to <base>/graphql and returns the raw JSON
// bytes of the "data" field on success. Variables may be nil, in which case
// the "variables" key is omitted from the request body.
//
// Execute returns an error wrapping:
//   - ErrAuth if no API key is configured or the server answers 401/403
//   - ErrTransport if the request cannot be sent, the status is not 2xx, or
//     the GraphQL response contains one or more errors
//   - ErrDecode if the response body is not a GraphQL JSON envelope
func (c *HTTPClient) Execute(ctx context.Context, user identity.User, query string, variables map[string]any) ([]byte, error) {
	bodyBytes, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("graphql: marshal request: %w: %w", ErrDecode, err)
	}

	raw, err := c.send(ctx, http.MethodPost, c.baseURL+graphqlPath, bytes.NewReader(bodyBytes), user)
	if err != nil {
		return nil, err
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(raw, &gqlResp); err != nil {
		return nil, fmt.Errorf("graphql: decode response: %w: %w", ErrDecode, err)
	}

	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("graphql: %w: %s", ErrTransport, strings.Join(msgs, "; "))
	}

	return []byte(gqlResp.Data), nil
}

// Do issues a REST request to <base>/<path> and returns the response body.
// Error classification matches Execute.
func (c *HTTPClient) Do(ctx context.Context, method, path string, user identity.User) ([]byte, error) {
	return c.send(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), nil, user)
}

// send performs one authenticated round trip and classifies failures.
func (c *HTTPClient) send(ctx context.Context, method, url string, body io.Reader, user identity.User) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("graphql: %w: API key is not configured", ErrAuth)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("graphql: create request: %w: %w", ErrTransport, err)
	}
	c.setHeaders(req, user)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql: request failed: %w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("graphql: read response: %w: %w", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("graphql: %w: authentication failed (HTTP %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("graphql: %w: unexpected HTTP status %d: %s", ErrTransport, resp.StatusCode, truncate(raw))
	}

	return raw, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, user identity.User) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-MAGICBELL-API-KEY", c.apiKey)
	if c.apiSecret != "" {
		req.Header.Set("X-MAGICBELL-API-SECRET", c.apiSecret)
	}
	for k, v := range user.Headers() {
		req.Header.Set(k, v)
	}
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
