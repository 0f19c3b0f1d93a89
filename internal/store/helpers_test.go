package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/magicbell-io/magicbell-go/internal/identity"
	"github.com/magicbell-io/magicbell-go/internal/notifications"
)

var (
	testUser  = identity.Email("ana@example.com")
	testNow   = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	earlier   = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	testClock = func() time.Time { return testNow }
)

// fetchCall records one FetchPage invocation.
type fetchCall struct {
	predicate Predicate
	cursor    CursorParams
	user      identity.User
}

// fakeFetcher serves scripted pages in order and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	pages []Page
	errs  []error
	calls []fetchCall
}

func (f *fakeFetcher) FetchPage(ctx context.Context, p Predicate, c CursorParams, user identity.User) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.calls)
	f.calls = append(f.calls, fetchCall{predicate: p, cursor: c, user: user})
	if i < len(f.errs) && f.errs[i] != nil {
		return Page{}, f.errs[i]
	}
	if i >= len(f.pages) {
		return Page{}, fmt.Errorf("fakeFetcher: no page scripted for call %d", i)
	}
	return f.pages[i], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// remoteCall records one remote action or delete.
type remoteCall struct {
	kind notifications.ActionKind
	id   string
}

const kindDelete notifications.ActionKind = "DELETE"

// fakeRemote records remote calls and fails them with err when set.
type fakeRemote struct {
	mu    sync.Mutex
	err   error
	calls []remoteCall

	// block, when non-nil, is received from before the call returns.
	block chan struct{}
}

func (r *fakeRemote) PerformAction(ctx context.Context, kind notifications.ActionKind, id string, user identity.User) error {
	return r.record(ctx, kind, id)
}

func (r *fakeRemote) Delete(ctx context.Context, id string, user identity.User) error {
	return r.record(ctx, kindDelete, id)
}

func (r *fakeRemote) record(ctx context.Context, kind notifications.ActionKind, id string) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, remoteCall{kind: kind, id: id})
	return r.err
}

func (r *fakeRemote) recorded() []remoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]remoteCall(nil), r.calls...)
}

// notification builds a notification in the given state.
func notification(id string, read, seen, archived bool) notifications.Notification {
	n := notifications.Notification{ID: id, Title: "Title " + id}
	ts := earlier
	if read {
		n.ReadAt = &ts
	}
	if seen {
		n.SeenAt = &ts
	}
	if archived {
		n.ArchivedAt = &ts
	}
	return n
}

func withCategory(n notifications.Notification, category string) notifications.Notification {
	n.Category = &category
	return n
}

func page(total, unread, unseen int, endCursor string, hasNext bool, nodes ...notifications.Notification) Page {
	p := Page{
		TotalCount:  total,
		UnreadCount: unread,
		UnseenCount: unseen,
		PageInfo:    PageInfo{HasNextPage: hasNext},
	}
	if endCursor != "" {
		p.PageInfo.EndCursor = &endCursor
	}
	for i, n := range nodes {
		p.Edges = append(p.Edges, Edge{Cursor: fmt.Sprintf("%s-%d", endCursor, i), Node: n})
	}
	return p
}

func newTestStore(p Predicate, fetcher PageFetcher, remote Remote, opts ...Option) *NotificationStore {
	base := []Option{WithLogger(zerolog.Nop()), WithClock(testClock), WithPageSize(2)}
	return NewNotificationStore(p, testUser, fetcher, remote, append(base, opts...)...)
}
