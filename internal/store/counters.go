package store

import (
	"fmt"

	"github.com/magicbell-io/magicbell-go/internal/notifications"
)

// Counters are the aggregate counts of a store view.
type Counters struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
	Unseen int `json:"unseen"`
}

// Delta is a signed change to Counters.
type Delta struct {
	Total  int
	Unread int
	Unseen int
}

// IsZero reports whether d changes nothing.
func (d Delta) IsZero() bool { return d == Delta{} }

// contribution is what a single notification adds to the counters of the view
// described by p. An absent notification contributes nothing.
//
// A notification counts toward Total when it matches p, toward Unread when it
// also is neither read nor archived, and toward Unseen when it also is neither
// seen nor archived.
func contribution(n *notifications.Notification, p Predicate) Counters {
	if n == nil || !p.Matches(*n) {
		return Counters{}
	}
	var c Counters
	c.Total = 1
	if !n.IsRead() && !n.IsArchived() {
		c.Unread = 1
	}
	if !n.IsSeen() && !n.IsArchived() {
		c.Unseen = 1
	}
	return c
}

// AdjustCounters computes the counter change caused by tr within the view
// described by p. Every mutation (actions, bulk actions and deletion) is
// reduced to a transition and goes through this one rule.
func AdjustCounters(tr Transition, p Predicate) Delta {
	before := contribution(tr.Before, p)
	after := contribution(tr.After, p)
	return Delta{
		Total:  after.Total - before.Total,
		Unread: after.Unread - before.Unread,
		Unseen: after.Unseen - before.Unseen,
	}
}

// Apply returns c adjusted by d. Counters never go below zero and Unread and
// Unseen never exceed Total; when d would break either rule the result is
// clamped and ErrInvariantViolation is returned alongside it.
func (c Counters) Apply(d Delta) (Counters, error) {
	next := Counters{
		Total:  c.Total + d.Total,
		Unread: c.Unread + d.Unread,
		Unseen: c.Unseen + d.Unseen,
	}
	clamped := next.clamp()
	if clamped != next {
		return clamped, fmt.Errorf("%w: %+v adjusted by %+v gives %+v", ErrInvariantViolation, c, d, next)
	}
	return next, nil
}

func (c Counters) clamp() Counters {
	c.Total = max(c.Total, 0)
	c.Unread = min(max(c.Unread, 0), c.Total)
	c.Unseen = min(max(c.Unseen, 0), c.Total)
	return c
}
