package store

import (
	"fmt"
	"strconv"

	"github.com/magicbell-io/magicbell-go/internal/config"
	"github.com/magicbell-io/magicbell-go/internal/graphql"
	"github.com/magicbell-io/magicbell-go/internal/notifications"
)

// Direction is the pagination direction. Only forward pagination is supported.
type Direction string

const DirectionNext Direction = "next"

// Cursor is an opaque server-issued position in a feed.
type Cursor struct {
	Direction Direction
	Token     string
}

// CursorParams selects a page: the position to start after and how many
// notifications to return. A nil Cursor requests the first page.
type CursorParams struct {
	Cursor   *Cursor
	PageSize int
}

// FirstPage returns params for the first page. Non-positive sizes fall back to
// config.DefaultPageSize.
func FirstPage(pageSize int) CursorParams {
	return CursorParams{PageSize: normalizePageSize(pageSize)}
}

// NextPage returns params for the page after token.
func NextPage(token string, pageSize int) CursorParams {
	return CursorParams{
		Cursor:   &Cursor{Direction: DirectionNext, Token: token},
		PageSize: normalizePageSize(pageSize),
	}
}

func normalizePageSize(n int) int {
	if n <= 0 {
		return config.DefaultPageSize
	}
	return n
}

// Serialize returns the pagination query fragment, e.g.
//
//	first: 20, after: "Y3Vyc29yOjE="
func (c CursorParams) Serialize() string {
	s := "first: " + strconv.Itoa(normalizePageSize(c.PageSize))
	if c.Cursor != nil && c.Cursor.Token != "" {
		s += ", after: " + graphQLString(c.Cursor.Token)
	}
	return s
}

// Edge pairs a notification with its cursor.
type Edge struct {
	Cursor string                     `json:"cursor"`
	Node   notifications.Notification `json:"node"`
}

// PageInfo carries continuation state. EndCursor is the cursor of the last
// edge and is what the next page is requested after.
type PageInfo struct {
	EndCursor   *string `json:"endCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

// Page is one page of a feed together with the server's authoritative
// counters for the whole view.
type Page struct {
	Edges       []Edge   `json:"edges"`
	PageInfo    PageInfo `json:"pageInfo"`
	TotalCount  int      `json:"totalCount"`
	UnreadCount int      `json:"unreadCount"`
	UnseenCount int      `json:"unseenCount"`
}

// Counters returns the page's counters.
func (p Page) Counters() Counters {
	return Counters{Total: p.TotalCount, Unread: p.UnreadCount, Unseen: p.UnseenCount}
}

// Validate checks that a page is usable by a store. Failures wrap
// graphql.ErrDecode since they mean the server sent something malformed.
func (p Page) Validate() error {
	if p.TotalCount < 0 || p.UnreadCount < 0 || p.UnseenCount < 0 {
		return fmt.Errorf("%w: negative counter in page (total=%d unread=%d unseen=%d)",
			graphql.ErrDecode, p.TotalCount, p.UnreadCount, p.UnseenCount)
	}
	if p.PageInfo.HasNextPage && (p.PageInfo.EndCursor == nil || *p.PageInfo.EndCursor == "") {
		return fmt.Errorf("%w: page has a next page but no end cursor", graphql.ErrDecode)
	}
	seen := make(map[string]struct{}, len(p.Edges))
	for i, e := range p.Edges {
		if e.Node.ID == "" {
			return fmt.Errorf("%w: edge %d has no notification id", graphql.ErrDecode, i)
		}
		if _, dup := seen[e.Node.ID]; dup {
			return fmt.Errorf("%w: notification %q appears twice in page", graphql.ErrDecode, e.Node.ID)
		}
		seen[e.Node.ID] = struct{}{}
	}
	return nil
}
