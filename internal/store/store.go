// Package store implements the notification feed store: a locally cached,
// paginated view of one user's notifications under one filter predicate,
// with counters kept consistent with confirmed remote actions.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/magicbell-io/magicbell-go/internal/identity"
	"github.com/magicbell-io/magicbell-go/internal/logging"
	"github.com/magicbell-io/magicbell-go/internal/notifications"
)

// PageFetcher returns one page of a feed.
type PageFetcher interface {
	FetchPage(ctx context.Context, predicate Predicate, cursor CursorParams, user identity.User) (Page, error)
}

// Remote is the set of remote operations a store needs to change state.
type Remote interface {
	notifications.ActionDispatcher
	notifications.Deleter
}

// Option configures a NotificationStore.
type Option func(*NotificationStore)

// WithPageSize sets the number of notifications requested per page.
func WithPageSize(n int) Option {
	return func(s *NotificationStore) { s.pageSize = normalizePageSize(n) }
}

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *NotificationStore) { s.logger = l }
}

// WithClock sets the time source used for readAt, seenAt and archivedAt.
func WithClock(now func() time.Time) Option {
	return func(s *NotificationStore) { s.now = now }
}

// NotificationStore caches the notifications of one (user, predicate) view.
//
// Mutating operations are serialized by an operation lock that is held across
// the remote round trip. Local state is only written after the remote call
// succeeds, under a separate state lock, so readers always observe the state
// from before or after an operation and never a partial one.
type NotificationStore struct {
	predicate Predicate
	user      identity.User
	fetcher   PageFetcher
	remote    Remote
	pageSize  int
	logger    zerolog.Logger
	now       func() time.Time

	op *semaphore.Weighted

	mu          sync.RWMutex
	edges       []Edge
	counters    Counters
	hasNextPage bool
	nextCursor  *string
}

// NewNotificationStore returns an empty store for user's notifications
// matching predicate. The predicate is copied and cannot be changed later.
func NewNotificationStore(predicate Predicate, user identity.User, fetcher PageFetcher, remote Remote, opts ...Option) *NotificationStore {
	if fetcher == nil {
		panic("page fetcher must not be nil")
	}
	if remote == nil {
		panic("remote must not be nil")
	}

	s := &NotificationStore{
		predicate:   predicate.normalized(),
		user:        user,
		fetcher:     fetcher,
		remote:      remote,
		pageSize:    normalizePageSize(0),
		logger:      logging.Component("store"),
		now:         func() time.Time { return time.Now().UTC() },
		op:          semaphore.NewWeighted(1),
		hasNextPage: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("predicate", s.predicate.Key()).Str("user", user.Key()).Logger()
	return s
}

// lock acquires the operation lock, giving up if ctx is done first.
func (s *NotificationStore) lock(ctx context.Context) error {
	if err := s.op.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("store: waiting for pending operation: %w", err)
	}
	return nil
}

func (s *NotificationStore) unlock() { s.op.Release(1) }

// ============================================================================
// Pagination
// ============================================================================

// Refresh fetches the first page and replaces the whole cache with it. On
// failure the previous cache is left untouched.
func (s *NotificationStore) Refresh(ctx context.Context) ([]notifications.Notification, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	page, err := s.fetchPage(ctx, FirstPage(s.pageSize))
	if err != nil {
		return nil, fmt.Errorf("store refresh: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges = cloneEdges(page.Edges)
	s.installPageLocked(page)

	s.logger.Debug().Int("edges", len(page.Edges)).Interface("counters", s.counters).Msg("refreshed")
	return nodes(s.edges), nil
}

// Fetch appends the next page to the cache and returns only the appended
// notifications. Once the feed is exhausted Fetch returns an empty slice
// without contacting the server.
func (s *NotificationStore) Fetch(ctx context.Context) ([]notifications.Notification, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	s.mu.RLock()
	hasNext, cursor := s.hasNextPage, s.nextCursor
	s.mu.RUnlock()

	if !hasNext {
		return []notifications.Notification{}, nil
	}

	params := FirstPage(s.pageSize)
	if cursor != nil {
		params = NextPage(*cursor, s.pageSize)
	}

	page, err := s.fetchPage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("store fetch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	appended := make([]Edge, 0, len(page.Edges))
	for _, e := range page.Edges {
		if s.indexLocked(e.Node.ID) >= 0 {
			// The feed shifted between pages; keep the first occurrence.
			s.logger.Debug().Str("id", e.Node.ID).Msg("skipping duplicate edge")
			continue
		}
		appended = append(appended, cloneEdge(e))
	}
	s.edges = append(s.edges, appended...)
	s.installPageLocked(page)

	s.logger.Debug().Int("edges", len(appended)).Bool("has_next_page", s.hasNextPage).Msg("fetched page")
	return nodes(appended), nil
}

func (s *NotificationStore) fetchPage(ctx context.Context, params CursorParams) (Page, error) {
	page, err := s.fetcher.FetchPage(ctx, s.predicate, params, s.user)
	if err != nil {
		return Page{}, err
	}
	if err := page.Validate(); err != nil {
		return Page{}, err
	}
	return page, nil
}

// installPageLocked overwrites counters and continuation state with the
// page's authoritative values. s.mu must be held for writing.
func (s *NotificationStore) installPageLocked(page Page) {
	s.counters = page.Counters()
	if clamped := s.counters.clamp(); clamped != s.counters {
		s.logger.Warn().Err(ErrInvariantViolation).Interface("counters", s.counters).Msg("server counters out of range")
		s.counters = clamped
	}
	s.hasNextPage = page.PageInfo.HasNextPage
	s.nextCursor = nil
	if page.PageInfo.EndCursor != nil {
		c := *page.PageInfo.EndCursor
		s.nextCursor = &c
	}
}

// ============================================================================
// Single-notification actions
// ============================================================================

// MarkAsRead marks n read remotely, then locally. readAt and seenAt are only
// set when unset, so repeating the call changes nothing.
func (s *NotificationStore) MarkAsRead(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	return s.act(ctx, notifications.ActionMarkRead, n, func(n *notifications.Notification, now time.Time) {
		if n.ReadAt == nil {
			n.ReadAt = &now
		}
		if n.SeenAt == nil {
			n.SeenAt = &now
		}
	})
}

// MarkAsUnread marks n unread remotely, then locally. Seen state is kept.
func (s *NotificationStore) MarkAsUnread(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	return s.act(ctx, notifications.ActionMarkUnread, n, func(n *notifications.Notification, _ time.Time) {
		n.ReadAt = nil
	})
}

// Archive archives n remotely, then locally. Archiving an archived
// notification keeps its original archivedAt.
func (s *NotificationStore) Archive(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	return s.act(ctx, notifications.ActionArchive, n, func(n *notifications.Notification, now time.Time) {
		if n.ArchivedAt == nil {
			n.ArchivedAt = &now
		}
	})
}

// Unarchive restores n remotely, then locally.
func (s *NotificationStore) Unarchive(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	return s.act(ctx, notifications.ActionUnarchive, n, func(n *notifications.Notification, _ time.Time) {
		n.ArchivedAt = nil
	})
}

type mutation func(n *notifications.Notification, now time.Time)

func (s *NotificationStore) act(ctx context.Context, kind notifications.ActionKind, n notifications.Notification, mutate mutation) (notifications.Notification, error) {
	if n.ID == "" {
		return notifications.Notification{}, fmt.Errorf("store %s: %w: missing id", kind, ErrInvalidNotification)
	}
	if err := s.lock(ctx); err != nil {
		return notifications.Notification{}, err
	}
	defer s.unlock()

	if err := s.remote.PerformAction(ctx, kind, n.ID, s.user); err != nil {
		return notifications.Notification{}, fmt.Errorf("store %s: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(n.ID)
	if i < 0 {
		s.logger.Warn().Str("action", string(kind)).Str("id", n.ID).Msg("remote action succeeded for uncached notification")
		return notifications.Notification{}, fmt.Errorf("store %s %q: %w", kind, n.ID, ErrNotFoundLocally)
	}
	s.mutateLocked(i, mutate)
	return s.edges[i].Node.Clone(), nil
}

// mutateLocked applies mutate to the cached notification at index i and
// adjusts counters by the resulting transition. s.mu must be held for writing.
func (s *NotificationStore) mutateLocked(i int, mutate mutation) {
	before := s.edges[i].Node.Clone()
	mutate(&s.edges[i].Node, s.now())
	s.applyLocked(Transition{Before: &before, After: &s.edges[i].Node})
}

func (s *NotificationStore) applyLocked(tr Transition) {
	d := AdjustCounters(tr, s.predicate)
	if d.IsZero() {
		return
	}
	next, err := s.counters.Apply(d)
	if err != nil {
		s.logger.Warn().Err(err).Msg("counters clamped")
	}
	s.counters = next
}

// ============================================================================
// Bulk actions
// ============================================================================

// MarkAllNotificationAsRead marks every notification read with one remote
// call, then applies the MarkAsRead mutation to every cached notification.
func (s *NotificationStore) MarkAllNotificationAsRead(ctx context.Context) error {
	return s.actAll(ctx, notifications.ActionMarkAllRead, func(n *notifications.Notification, now time.Time) {
		if n.ReadAt == nil {
			n.ReadAt = &now
		}
		if n.SeenAt == nil {
			n.SeenAt = &now
		}
	})
}

// MarkAllNotificationAsSeen marks every notification seen with one remote
// call, then sets seenAt on every cached notification still unseen.
func (s *NotificationStore) MarkAllNotificationAsSeen(ctx context.Context) error {
	return s.actAll(ctx, notifications.ActionMarkAllSeen, func(n *notifications.Notification, now time.Time) {
		if n.SeenAt == nil {
			n.SeenAt = &now
		}
	})
}

func (s *NotificationStore) actAll(ctx context.Context, kind notifications.ActionKind, mutate mutation) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if err := s.remote.PerformAction(ctx, kind, "", s.user); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.edges {
		s.mutateLocked(i, mutate)
	}
	s.logger.Debug().Str("action", string(kind)).Int("edges", len(s.edges)).Msg("bulk action applied")
	return nil
}

// ============================================================================
// Delete
// ============================================================================

// Delete deletes n remotely, then evicts it from the cache. Deleting a
// notification the store has not cached still deletes it remotely but leaves
// local state unchanged.
func (s *NotificationStore) Delete(ctx context.Context, n notifications.Notification) error {
	if n.ID == "" {
		return fmt.Errorf("store delete: %w: missing id", ErrInvalidNotification)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	if err := s.remote.Delete(ctx, n.ID, s.user); err != nil {
		return fmt.Errorf("store delete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(n.ID)
	if i < 0 {
		s.logger.Debug().Str("id", n.ID).Msg("deleted uncached notification")
		return nil
	}
	before := s.edges[i].Node
	s.applyLocked(Transition{Before: &before})
	s.edges = slices.Delete(s.edges, i, i+1)
	return nil
}

// ============================================================================
// Inspection
// ============================================================================

// State is a consistent copy of a store's state.
type State struct {
	Predicate     Predicate                    `json:"-"`
	Counters      Counters                     `json:"counts"`
	HasNextPage   bool                         `json:"has_next_page"`
	NextCursor    *string                      `json:"next_cursor,omitempty"`
	Notifications []notifications.Notification `json:"notifications"`
}

// Snapshot returns a copy of the store's state taken under one read lock.
func (s *NotificationStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Predicate:     s.predicate.normalized(),
		Counters:      s.counters,
		HasNextPage:   s.hasNextPage,
		Notifications: nodes(s.edges),
	}
	if s.nextCursor != nil {
		c := *s.nextCursor
		st.NextCursor = &c
	}
	return st
}

// Counters returns the current counters.
func (s *NotificationStore) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters
}

// TotalCount returns the number of notifications in the view.
func (s *NotificationStore) TotalCount() int { return s.Counters().Total }

// UnreadCount returns the number of unread, unarchived notifications in the view.
func (s *NotificationStore) UnreadCount() int { return s.Counters().Unread }

// UnseenCount returns the number of unseen, unarchived notifications in the view.
func (s *NotificationStore) UnseenCount() int { return s.Counters().Unseen }

// HasNextPage reports whether Fetch may return more notifications.
func (s *NotificationStore) HasNextPage() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasNextPage
}

// Len returns the number of cached notifications.
func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Notifications returns the cached notifications in feed order.
func (s *NotificationStore) Notifications() []notifications.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nodes(s.edges)
}

// Get returns the cached notification with the given id.
func (s *NotificationStore) Get(id string) (notifications.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return notifications.Notification{}, false
	}
	return s.edges[i].Node.Clone(), true
}

// Predicate returns the store's predicate.
func (s *NotificationStore) Predicate() Predicate { return s.predicate.normalized() }

// User returns the identity the store fetches and acts for.
func (s *NotificationStore) User() identity.User { return s.user }

func (s *NotificationStore) indexLocked(id string) int {
	return slices.IndexFunc(s.edges, func(e Edge) bool { return e.Node.ID == id })
}

func cloneEdge(e Edge) Edge {
	return Edge{Cursor: e.Cursor, Node: e.Node.Clone()}
}

func cloneEdges(in []Edge) []Edge {
	out := make([]Edge, len(in))
	for i, e := range in {
		out[i] = cloneEdge(e)
	}
	return out
}

func nodes(edges []Edge) []notifications.Notification {
	out := make([]notifications.Notification, len(edges))
	for i, e := range edges {
		out[i] = e.Node.Clone()
	}
	return out
}
