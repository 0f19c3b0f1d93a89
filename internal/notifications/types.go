// Package notifications provides the notification entity and the remote
// actions that change its state on the MagicBell API.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/magicbell-io/magicbell-go/internal/identity"
)

// Notification is a single feed item. ReadAt, SeenAt and ArchivedAt are nil
// while the notification is unread, unseen and unarchived respectively. The
// display fields are carried as-is and never interpreted by the feed.
type Notification struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Content          *string         `json:"content,omitempty"`
	ActionURL        *string         `json:"actionUrl,omitempty"`
	Category         *string         `json:"category,omitempty"`
	Topic            *string         `json:"topic,omitempty"`
	CustomAttributes json.RawMessage `json:"customAttributes,omitempty"`
	SentAt           *time.Time      `json:"sentAt,omitempty"`
	ReadAt           *time.Time      `json:"readAt,omitempty"`
	SeenAt           *time.Time      `json:"seenAt,omitempty"`
	ArchivedAt       *time.Time      `json:"archivedAt,omitempty"`
}

// IsRead reports whether the notification has been read.
func (n Notification) IsRead() bool { return n.ReadAt != nil }

// IsSeen reports whether the notification has been seen.
func (n Notification) IsSeen() bool { return n.SeenAt != nil }

// IsArchived reports whether the notification has been archived.
func (n Notification) IsArchived() bool { return n.ArchivedAt != nil }

// Clone returns a deep copy so callers cannot mutate cached state.
func (n Notification) Clone() Notification {
	c := n
	c.Content = cloneString(n.Content)
	c.ActionURL = cloneString(n.ActionURL)
	c.Category = cloneString(n.Category)
	c.Topic = cloneString(n.Topic)
	c.SentAt = cloneTime(n.SentAt)
	c.ReadAt = cloneTime(n.ReadAt)
	c.SeenAt = cloneTime(n.SeenAt)
	c.ArchivedAt = cloneTime(n.ArchivedAt)
	if n.CustomAttributes != nil {
		c.CustomAttributes = append(json.RawMessage(nil), n.CustomAttributes...)
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ActionKind names a remote state change.
type ActionKind string

const (
	ActionMarkRead    ActionKind = "MARK_READ"
	ActionMarkUnread  ActionKind = "MARK_UNREAD"
	ActionArchive     ActionKind = "ARCHIVE"
	ActionUnarchive   ActionKind = "UNARCHIVE"
	ActionMarkAllRead ActionKind = "MARK_ALL_READ"
	ActionMarkAllSeen ActionKind = "MARK_ALL_SEEN"
)

// RequiresID reports whether the action targets a single notification.
func (k ActionKind) RequiresID() bool {
	switch k {
	case ActionMarkRead, ActionMarkUnread, ActionArchive, ActionUnarchive:
		return true
	}
	return false
}

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	return k.RequiresID() || k == ActionMarkAllRead || k == ActionMarkAllSeen
}

// ParseActionKind converts s into an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return k, nil
}

// ActionDispatcher performs remote state changes. notificationID must be set
// for single-item actions and empty for bulk actions.
type ActionDispatcher interface {
	PerformAction(ctx context.Context, kind ActionKind, notificationID string, user identity.User) error
}

// Deleter removes a notification remotely.
type Deleter interface {
	Delete(ctx context.Context, id string, user identity.User) error
}

// NotificationManager groups every remote notification operation.
type NotificationManager interface {
	ActionDispatcher
	Deleter
	Get(ctx context.Context, id string, user identity.User) (Notification, error)
}
