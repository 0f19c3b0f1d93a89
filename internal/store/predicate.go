package store

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/magicbell-io/magicbell-go/internal/notifications"
)

// Predicate describes which notifications a store view includes.
//
// Read and Seen are tri-state: nil means no filter. Archived=false excludes
// archived notifications; Archived=true includes them. Categories and Topics
// restrict the view to notifications whose category (topic) is in the set;
// an empty set means no restriction.
type Predicate struct {
	Read       *bool
	Seen       *bool
	Archived   bool
	Categories []string
	Topics     []string
}

// Bool returns a pointer to b, for building predicates inline.
func Bool(b bool) *bool { return &b }

// normalized returns a deep copy with sorted, de-duplicated sets, so equal
// filters serialize identically regardless of the order they were given in.
func (p Predicate) normalized() Predicate {
	n := Predicate{Archived: p.Archived}
	if p.Read != nil {
		n.Read = Bool(*p.Read)
	}
	if p.Seen != nil {
		n.Seen = Bool(*p.Seen)
	}
	n.Categories = normalizeSet(p.Categories)
	n.Topics = normalizeSet(p.Topics)
	return n
}

func normalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// Serialize returns the remote query fragment for this predicate: read and
// seen only when set, archived always, categories and topics only when
// non-empty. Clauses are joined by ", ".
//
//	read: false, archived: false, categories:["billing", "comments"]
func (p Predicate) Serialize() string {
	p = p.normalized()

	params := make([]string, 0, 5)
	if p.Read != nil {
		params = append(params, "read: "+strconv.FormatBool(*p.Read))
	}
	if p.Seen != nil {
		params = append(params, "seen: "+strconv.FormatBool(*p.Seen))
	}
	params = append(params, "archived: "+strconv.FormatBool(p.Archived))
	if len(p.Categories) > 0 {
		params = append(params, "categories:"+quotedList(p.Categories))
	}
	if len(p.Topics) > 0 {
		params = append(params, "topics:"+quotedList(p.Topics))
	}
	return strings.Join(params, ", ")
}

func quotedList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = graphQLString(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// graphQLString renders v as a GraphQL string literal. JSON string escapes are
// a subset of GraphQL's.
func graphQLString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Key identifies the predicate. Two predicates with the same key describe the
// same view.
func (p Predicate) Key() string { return p.Serialize() }

// Equal reports whether p and other describe the same view.
func (p Predicate) Equal(other Predicate) bool { return p.Key() == other.Key() }

// Matches reports whether n falls inside this view.
func (p Predicate) Matches(n notifications.Notification) bool {
	if p.Read != nil && n.IsRead() != *p.Read {
		return false
	}
	if p.Seen != nil && n.IsSeen() != *p.Seen {
		return false
	}
	if !p.Archived && n.IsArchived() {
		return false
	}
	if len(p.Categories) > 0 && (n.Category == nil || !slices.Contains(p.Categories, *n.Category)) {
		return false
	}
	if len(p.Topics) > 0 && (n.Topic == nil || !slices.Contains(p.Topics, *n.Topic)) {
		return false
	}
	return true
}

// Transition is one state change of a notification. A nil side means the
// notification is absent on that side (not yet fetched, or deleted).
type Transition struct {
	Before *notifications.Notification
	After  *notifications.Notification
}

// Membership reports whether the notification belongs to this view before
// and after tr.
func (p Predicate) Membership(tr Transition) (before, after bool) {
	if tr.Before != nil {
		before = p.Matches(*tr.Before)
	}
	if tr.After != nil {
		after = p.Matches(*tr.After)
	}
	return before, after
}

// CountsToward reports whether the notification counts toward totalCount on
// both sides of tr, i.e. whether tr leaves totalCount unchanged for a member.
func (p Predicate) CountsToward(tr Transition) bool {
	before, after := p.Membership(tr)
	return before && after
}
