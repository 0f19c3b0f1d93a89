package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/magicbell-io/magicbell-go/internal/graphql"
	"github.com/magicbell-io/magicbell-go/internal/identity"
)

// Compile-time interface check.
var _ PageFetcher = (*GraphQLPageFetcher)(nil)

// connectionFields is the selection requested for every store page.
const connectionFields = `edges {
      cursor
      node {
        id
        title
        content
        actionUrl
        category
        topic
        customAttributes
        sentAt
        readAt
        seenAt
        archivedAt
      }
    }
    pageInfo {
      endCursor
      hasNextPage
    }
    totalCount
    unreadCount
    unseenCount`

// singleStoreName is the alias used when fetching a single page.
const singleStoreName = "data"

var aliasPattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// StoreContext names one page request inside a batched query. Name becomes
// the GraphQL alias the page is returned under.
type StoreContext struct {
	Name      string
	Predicate Predicate
	Cursor    CursorParams
}

// GraphQLPageFetcher fetches store pages through the GraphQL endpoint.
type GraphQLPageFetcher struct {
	client graphql.Client
}

// NewGraphQLPageFetcher returns a fetcher backed by client.
func NewGraphQLPageFetcher(client graphql.Client) *GraphQLPageFetcher {
	if client == nil {
		panic("graphql client must not be nil")
	}
	return &GraphQLPageFetcher{client: client}
}

// FetchPage fetches one page of the view described by predicate.
func (f *GraphQLPageFetcher) FetchPage(ctx context.Context, predicate Predicate, cursor CursorParams, user identity.User) (Page, error) {
	pages, err := f.FetchPages(ctx, []StoreContext{{Name: singleStoreName, Predicate: predicate, Cursor: cursor}}, user)
	if err != nil {
		return Page{}, err
	}
	return pages[singleStoreName], nil
}

// FetchPages fetches several pages in one request, keyed by context name.
// A response missing any requested alias is a decode error.
func (f *GraphQLPageFetcher) FetchPages(ctx context.Context, contexts []StoreContext, user identity.User) (map[string]Page, error) {
	query, err := buildQuery(contexts)
	if err != nil {
		return nil, err
	}

	data, err := f.client.Execute(ctx, user, query, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch pages: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("fetch pages: %w: %w", graphql.ErrDecode, err)
	}

	pages := make(map[string]Page, len(contexts))
	for _, sc := range contexts {
		body, ok := raw[sc.Name]
		if !ok || string(body) == "null" {
			return nil, fmt.Errorf("fetch pages: %w: server did not respond with %q", graphql.ErrDecode, sc.Name)
		}
		var page Page
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("fetch pages: parse %q: %w: %w", sc.Name, graphql.ErrDecode, err)
		}
		pages[sc.Name] = page
	}
	return pages, nil
}

// buildQuery renders one aliased notifications connection per context.
func buildQuery(contexts []StoreContext) (string, error) {
	if len(contexts) == 0 {
		return "", fmt.Errorf("fetch pages: no store contexts")
	}

	var b strings.Builder
	b.WriteString("query {\n")
	seen := make(map[string]bool, len(contexts))
	for _, sc := range contexts {
		if !aliasPattern.MatchString(sc.Name) {
			return "", fmt.Errorf("fetch pages: invalid store context name %q", sc.Name)
		}
		if seen[sc.Name] {
			return "", fmt.Errorf("fetch pages: duplicate store context name %q", sc.Name)
		}
		seen[sc.Name] = true

		fmt.Fprintf(&b, "  %s: notifications(%s, %s) {\n    %s\n  }\n",
			sc.Name, sc.Predicate.Serialize(), sc.Cursor.Serialize(), connectionFields)
	}
	b.WriteString("}")
	return b.String(), nil
}
