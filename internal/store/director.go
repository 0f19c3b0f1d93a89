package store

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/magicbell-io/magicbell-go/internal/identity"
)

// Director hands out one store per predicate for a single user.
type Director struct {
	user    identity.User
	fetcher PageFetcher
	remote  Remote
	opts    []Option

	mu     sync.Mutex
	order  []string
	stores map[string]*NotificationStore
}

// NewDirector returns a Director for user. opts are applied to every store
// it creates.
func NewDirector(user identity.User, fetcher PageFetcher, remote Remote, opts ...Option) *Director {
	if fetcher == nil {
		panic("page fetcher must not be nil")
	}
	if remote == nil {
		panic("remote must not be nil")
	}
	return &Director{
		user:    user,
		fetcher: fetcher,
		remote:  remote,
		opts:    opts,
		stores:  make(map[string]*NotificationStore),
	}
}

// With returns the store for predicate, creating it on first use. Equal
// predicates share one store.
func (d *Director) With(predicate Predicate) *NotificationStore {
	key := predicate.Key()

	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.stores[key]; ok {
		return s
	}
	s := NewNotificationStore(predicate, d.user, d.fetcher, d.remote, d.opts...)
	d.stores[key] = s
	d.order = append(d.order, key)
	return s
}

// Stores returns every store created so far, in creation order.
func (d *Director) Stores() []*NotificationStore {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*NotificationStore, len(d.order))
	for i, key := range d.order {
		out[i] = d.stores[key]
	}
	return out
}

// User returns the identity shared by every store.
func (d *Director) User() identity.User { return d.user }

// RefreshAll refreshes every store concurrently and returns the first error.
// Stores that refreshed successfully keep their new state.
func (d *Director) RefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range d.Stores() {
		g.Go(func() error {
			if _, err := s.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh %s: %w", s.Predicate().Key(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
