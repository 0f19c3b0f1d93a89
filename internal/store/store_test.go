package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicbell-io/magicbell-go/internal/graphql"
	"github.com/magicbell-io/magicbell-go/internal/notifications"
)

// ============================================================================
// Refresh / Fetch
// ============================================================================

func TestStore_Refresh_InstallsPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(5, 5, 5, "c2", true, notification("n1", false, false, false), notification("n2", false, false, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})

	got, err := s.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "n1", got[0].ID)
	assert.Equal(t, "n2", got[1].ID)
	assert.Equal(t, Counters{Total: 5, Unread: 5, Unseen: 5}, s.Counters())
	assert.True(t, s.HasNextPage())

	require.Len(t, fetcher.calls, 1)
	assert.Nil(t, fetcher.calls[0].cursor.Cursor, "refresh must request the first page")
	assert.Equal(t, 2, fetcher.calls[0].cursor.PageSize)
	assert.Equal(t, testUser, fetcher.calls[0].user)
}

func TestStore_Refresh_ReplacesCache(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(3, 3, 3, "c2", true, notification("n1", false, false, false), notification("n2", false, false, false)),
		page(3, 3, 3, "c3", false, notification("n3", false, false, false)),
		page(1, 0, 0, "c9", false, notification("n9", true, true, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	_, err = s.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	got, err := s.Refresh(ctx)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, []string{"n9"}, ids(s.Notifications()))
	assert.Equal(t, Counters{Total: 1}, s.Counters())
	assert.False(t, s.HasNextPage())
}

func TestStore_Refresh_FailureKeepsCache(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []Page{page(2, 1, 1, "c2", true, notification("n1", false, false, false), notification("n2", true, true, false))},
		errs:  []error{nil, fmt.Errorf("dial: %w", graphql.ErrTransport)},
	}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	before := s.Snapshot()

	_, err = s.Refresh(ctx)
	require.ErrorIs(t, err, graphql.ErrTransport)
	assert.Equal(t, before, s.Snapshot())
}

func TestStore_Refresh_InvalidPageIsDecodeError(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(-1, 0, 0, "", false),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})

	_, err := s.Refresh(context.Background())
	require.ErrorIs(t, err, graphql.ErrDecode)
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.HasNextPage(), "failed refresh must not change pagination state")
}

func TestStore_Fetch_PaginatesWithCursor(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(3, 3, 3, "c2", true, notification("n1", false, false, false), notification("n2", false, false, false)),
		page(3, 2, 3, "c3", false, notification("n3", false, false, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	first, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, ids(first))
	assert.Nil(t, fetcher.calls[0].cursor.Cursor, "first fetch after construction uses no cursor")

	second, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"n3"}, ids(second), "fetch returns only the appended notifications")

	require.NotNil(t, fetcher.calls[1].cursor.Cursor)
	assert.Equal(t, "c2", fetcher.calls[1].cursor.Cursor.Token)
	assert.Equal(t, DirectionNext, fetcher.calls[1].cursor.Cursor.Direction)

	assert.Equal(t, []string{"n1", "n2", "n3"}, ids(s.Notifications()))
	assert.Equal(t, Counters{Total: 3, Unread: 2, Unseen: 3}, s.Counters(), "counters come from the latest page")
	assert.False(t, s.HasNextPage())
}

func TestStore_Fetch_ExhaustedMakesNoCall(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(1, 1, 1, "c1", false, notification("n1", false, false, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	for range 3 {
		got, err := s.Fetch(ctx)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Equal(t, 1, fetcher.callCount())
}

func TestStore_Fetch_ShortPageDoesNotEndFeed(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(9, 9, 9, "c1", true, notification("n1", false, false, false)),
		page(9, 9, 9, "c2", false, notification("n2", false, false, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.True(t, s.HasNextPage(), "hasNextPage comes from the envelope, not page length")

	_, err = s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestStore_Fetch_FailureKeepsState(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []Page{page(5, 4, 3, "c2", true, notification("n1", false, false, false), notification("n2", true, true, false))},
		errs:  []error{nil, fmt.Errorf("dial: %w", graphql.ErrTransport)},
	}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	before := s.Snapshot()

	got, err := s.Fetch(ctx)
	require.ErrorIs(t, err, graphql.ErrTransport)
	assert.Nil(t, got)

	after := s.Snapshot()
	assert.Equal(t, before, after)
	require.NotNil(t, after.NextCursor)
	assert.Equal(t, "c2", *after.NextCursor)
	assert.True(t, after.HasNextPage)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestStore_Refresh_ClampsServerCounters(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(1, 3, 2, "", false, notification("n1", false, false, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counters{Total: 1, Unread: 1, Unseen: 1}, s.Counters())
}

func TestStore_Fetch_ClampsServerCounters(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(2, 2, 2, "c1", true, notification("n1", false, false, false)),
		page(2, 5, 4, "", false, notification("n2", false, false, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	_, err = s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counters{Total: 2, Unread: 2, Unseen: 2}, s.Counters())
}

func TestStore_Fetch_SkipsDuplicateEdges(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{
		page(3, 3, 3, "c2", true, notification("n1", false, false, false), notification("n2", false, false, false)),
		page(3, 3, 3, "c3", false, notification("n2", false, false, false), notification("n3", false, false, false)),
	}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Fetch(ctx)
	require.NoError(t, err)
	got, err := s.Fetch(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"n3"}, ids(got))
	assert.Equal(t, []string{"n1", "n2", "n3"}, ids(s.Notifications()))
}

// ============================================================================
// Single-notification actions
// ============================================================================

func TestStore_Scenario_ReadThenArchive(t *testing.T) {
	n1 := notification("n1", false, false, false)
	n2 := notification("n2", true, true, false)
	fetcher := &fakeFetcher{pages: []Page{page(5, 5, 5, "c2", true, n1, n2)}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, Counters{Total: 5, Unread: 5, Unseen: 5}, s.Counters())

	updated, err := s.MarkAsRead(ctx, n1)
	require.NoError(t, err)
	assert.Equal(t, 5, s.TotalCount())
	assert.Equal(t, 4, s.UnreadCount())
	assert.Equal(t, 4, s.UnseenCount())
	require.NotNil(t, updated.ReadAt)
	assert.Equal(t, testNow, *updated.ReadAt)

	_, err = s.Archive(ctx, n2)
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalCount(), "archived notification leaves a view that excludes archived")
	assert.Equal(t, 4, s.UnreadCount(), "already read notification does not change unread")

	assert.Equal(t, []remoteCall{
		{kind: notifications.ActionMarkRead, id: "n1"},
		{kind: notifications.ActionArchive, id: "n2"},
	}, remote.recorded())
}

func TestStore_MarkAsRead_Idempotent(t *testing.T) {
	n1 := notification("n1", false, false, false)
	fetcher := &fakeFetcher{pages: []Page{page(1, 1, 1, "", false, n1)}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	first, err := s.MarkAsRead(ctx, n1)
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	s.now = func() time.Time { return later }

	second, err := s.MarkAsRead(ctx, n1)
	require.NoError(t, err)

	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, *first.ReadAt, *second.ReadAt, "readAt must not change on the second application")
	assert.Equal(t, Counters{Total: 1}, s.Counters())
}

func TestStore_MarkAsUnread_UnderReadFilter(t *testing.T) {
	n1 := notification("n1", true, true, false)
	fetcher := &fakeFetcher{pages: []Page{page(3, 0, 0, "", false, n1)}}
	s := newTestStore(Predicate{Read: Bool(true)}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	updated, err := s.MarkAsUnread(ctx, n1)
	require.NoError(t, err)

	assert.Nil(t, updated.ReadAt)
	assert.NotNil(t, updated.SeenAt, "marking unread keeps seen state")
	assert.Equal(t, Counters{Total: 2}, s.Counters())
}

func TestStore_Archive_Cases(t *testing.T) {
	tests := []struct {
		name string
		p    Predicate
		n    notifications.Notification
		want Counters
	}{
		{
			name: "unread excluded when archived excluded",
			p:    Predicate{},
			n:    notification("n1", false, false, false),
			want: Counters{Total: 3, Unread: 2, Unseen: 2},
		},
		{
			name: "unread kept in total when archived included",
			p:    Predicate{Archived: true},
			n:    notification("n1", false, false, false),
			want: Counters{Total: 4, Unread: 2, Unseen: 2},
		},
		{
			name: "already archived is a no-op",
			p:    Predicate{Archived: true},
			n:    notification("n1", false, false, true),
			want: Counters{Total: 4, Unread: 3, Unseen: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{pages: []Page{page(4, 3, 3, "", false, tt.n)}}
			s := newTestStore(tt.p, fetcher, &fakeRemote{})
			ctx := context.Background()

			_, err := s.Refresh(ctx)
			require.NoError(t, err)

			updated, err := s.Archive(ctx, tt.n)
			require.NoError(t, err)
			assert.True(t, updated.IsArchived())
			if tt.n.IsArchived() {
				assert.Equal(t, *tt.n.ArchivedAt, *updated.ArchivedAt, "archivedAt keeps its original value")
			}
			assert.Equal(t, tt.want, s.Counters())
		})
	}
}

func TestStore_Unarchive_RestoresCounters(t *testing.T) {
	n1 := notification("n1", false, false, false)
	fetcher := &fakeFetcher{pages: []Page{page(4, 3, 3, "", false, n1)}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	initial := s.Counters()

	_, err = s.Archive(ctx, n1)
	require.NoError(t, err)
	updated, err := s.Unarchive(ctx, n1)
	require.NoError(t, err)

	assert.False(t, updated.IsArchived())
	assert.Equal(t, initial, s.Counters())
}

func TestStore_Action_NotFoundLocally(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{page(1, 1, 1, "", false, notification("n1", false, false, false))}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	before := s.Snapshot()

	_, err = s.MarkAsRead(ctx, notifications.Notification{ID: "ghost"})
	require.ErrorIs(t, err, ErrNotFoundLocally)
	assert.Len(t, remote.recorded(), 1, "the remote call still happens")
	assert.Equal(t, before, s.Snapshot())
}

func TestStore_Action_MissingID(t *testing.T) {
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, &fakeFetcher{}, remote)

	_, err := s.Archive(context.Background(), notifications.Notification{})
	require.ErrorIs(t, err, ErrInvalidNotification)
	require.ErrorIs(t, s.Delete(context.Background(), notifications.Notification{}), ErrInvalidNotification)
	assert.Empty(t, remote.recorded())
}

func TestStore_Action_RemoteFailureLeavesStateUntouched(t *testing.T) {
	n1 := notification("n1", false, false, false)
	n2 := notification("n2", false, true, false)
	fetcher := &fakeFetcher{pages: []Page{page(5, 5, 4, "c2", true, n1, n2)}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	before := s.Snapshot()

	remote.err = fmt.Errorf("timeout: %w", graphql.ErrTransport)

	_, err = s.MarkAsRead(ctx, n1)
	require.ErrorIs(t, err, graphql.ErrTransport)
	assert.Equal(t, before, s.Snapshot())

	require.ErrorIs(t, s.MarkAllNotificationAsRead(ctx), graphql.ErrTransport)
	require.ErrorIs(t, s.Delete(ctx, n2), graphql.ErrTransport)
	assert.Equal(t, before, s.Snapshot())
}

// ============================================================================
// Bulk actions
// ============================================================================

func TestStore_MarkAllNotificationAsRead(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{page(5, 4, 3, "c3", true,
		notification("n1", false, false, false),
		notification("n2", false, true, false),
		notification("n3", true, true, false),
	)}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, s.MarkAllNotificationAsRead(ctx))

	assert.Equal(t, []remoteCall{{kind: notifications.ActionMarkAllRead}}, remote.recorded())
	for _, n := range s.Notifications() {
		assert.True(t, n.IsRead(), n.ID)
		assert.True(t, n.IsSeen(), n.ID)
	}
	assert.Equal(t, Counters{Total: 5, Unread: 2, Unseen: 2}, s.Counters())
}

func TestStore_MarkAllNotificationAsRead_UnderUnreadFilter(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{page(2, 2, 2, "", false,
		notification("n1", false, false, false),
		notification("n2", false, false, false),
	)}}
	s := newTestStore(Predicate{Read: Bool(false)}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkAllNotificationAsRead(ctx))

	assert.Equal(t, Counters{}, s.Counters())
}

func TestStore_MarkAllNotificationAsSeen(t *testing.T) {
	seenAt := earlier
	fetcher := &fakeFetcher{pages: []Page{page(4, 3, 2, "", false,
		notification("n1", false, false, false),
		notification("n2", false, true, false),
		notification("n3", true, false, false),
	)}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	require.NoError(t, s.MarkAllNotificationAsSeen(ctx))

	assert.Equal(t, []remoteCall{{kind: notifications.ActionMarkAllSeen}}, remote.recorded())
	got := s.Notifications()
	assert.Equal(t, testNow, *got[0].SeenAt)
	assert.Equal(t, seenAt, *got[1].SeenAt, "already seen keeps its seenAt")
	assert.Equal(t, testNow, *got[2].SeenAt)
	assert.False(t, got[0].IsRead(), "marking seen does not mark read")
	assert.Equal(t, Counters{Total: 4, Unread: 3, Unseen: 0}, s.Counters())
}

// ============================================================================
// Delete
// ============================================================================

func TestStore_Delete_Cached(t *testing.T) {
	n1 := notification("n1", false, false, false)
	n2 := notification("n2", true, true, false)
	fetcher := &fakeFetcher{pages: []Page{page(5, 4, 4, "c2", true, n1, n2)}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, n1))

	assert.Equal(t, []string{"n2"}, ids(s.Notifications()))
	assert.Equal(t, Counters{Total: 4, Unread: 3, Unseen: 3}, s.Counters())
	assert.Equal(t, []remoteCall{{kind: kindDelete, id: "n1"}}, remote.recorded())
	_, ok := s.Get("n1")
	assert.False(t, ok)
}

func TestStore_Delete_Uncached(t *testing.T) {
	fetcher := &fakeFetcher{pages: []Page{page(5, 4, 4, "c2", true, notification("n1", false, false, false))}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)
	before := s.Snapshot()

	require.NoError(t, s.Delete(ctx, notifications.Notification{ID: "elsewhere"}))

	assert.Equal(t, []remoteCall{{kind: kindDelete, id: "elsewhere"}}, remote.recorded())
	assert.Equal(t, before, s.Snapshot())
}

// ============================================================================
// Invariants, concurrency and inspection
// ============================================================================

func TestStore_CountersNeverNegative(t *testing.T) {
	n1 := notification("n1", false, false, false)
	n2 := notification("n2", false, false, false)
	// The server reports fewer unread than the cache holds.
	fetcher := &fakeFetcher{pages: []Page{page(2, 1, 1, "", false, n1, n2)}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	_, err = s.MarkAsRead(ctx, n1)
	require.NoError(t, err)
	_, err = s.MarkAsRead(ctx, n2)
	require.NoError(t, err)

	c := s.Counters()
	assert.Equal(t, 0, c.Unread)
	assert.Equal(t, 0, c.Unseen)
	assert.Equal(t, 2, c.Total)
}

func TestStore_OperationsAreSerialized(t *testing.T) {
	nodes := make([]notifications.Notification, 20)
	for i := range nodes {
		nodes[i] = notification(fmt.Sprintf("n%d", i), false, false, false)
	}
	fetcher := &fakeFetcher{pages: []Page{page(20, 20, 20, "", false, nodes...)}}
	s := newTestStore(Predicate{}, fetcher, &fakeRemote{})
	ctx := context.Background()

	_, err := s.Refresh(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MarkAsRead(ctx, n)
			assert.NoError(t, err)
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, Counters{Total: 20}, s.Counters())
}

func TestStore_CancelledWhileWaitingForLock(t *testing.T) {
	n1 := notification("n1", false, false, false)
	fetcher := &fakeFetcher{pages: []Page{page(1, 1, 1, "", false, n1)}}
	remote := &fakeRemote{}
	s := newTestStore(Predicate{}, fetcher, remote)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	remote.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.MarkAsRead(context.Background(), n1)
		done <- err
	}()

	// Wait until the first operation holds the lock.
	require.Eventually(t, func() bool {
		if s.op.TryAcquire(1) {
			s.op.Release(1)
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Archive(ctx, n1)
	require.ErrorIs(t, err, context.Canceled)

	close(remote.block)
	require.NoError(t, <-done)
	assert.Equal(t, Counters{Total: 1}, s.Counters())
	assert.False(t, s.Notifications()[0].IsArchived())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	cat := "billing"
	n1 := notification("n1", false, false, false)
	n1.Category = &cat
	fetcher := &fakeFetcher{pages: []Page{page(1, 1, 1, "c1", true, n1)}}
	s := newTestStore(Predicate{Categories: []string{"billing"}}, fetcher, &fakeRemote{})

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	st := s.Snapshot()
	*st.Notifications[0].Category = "changed"
	*st.NextCursor = "changed"
	st.Predicate.Categories[0] = "changed"

	got, ok := s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, "billing", *got.Category)
	assert.Equal(t, "c1", *s.Snapshot().NextCursor)
	assert.Equal(t, []string{"billing"}, s.Predicate().Categories)
}

func TestNewNotificationStore_NilCollaboratorsPanic(t *testing.T) {
	assert.Panics(t, func() { NewNotificationStore(Predicate{}, testUser, nil, &fakeRemote{}) })
	assert.Panics(t, func() { NewNotificationStore(Predicate{}, testUser, &fakeFetcher{}, nil) })
}

func ids(ns []notifications.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}
