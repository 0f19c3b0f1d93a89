package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/magicbell-io/magicbell-go/internal/graphql"
	"github.com/magicbell-io/magicbell-go/internal/identity"
)

// Compile-time interface check.
var _ NotificationManager = (*HTTPNotificationManager)(nil)

// HTTPNotificationManager implements NotificationManager with REST calls made
// through a graphql.Client.
type HTTPNotificationManager struct {
	client graphql.Client
}

// NewHTTPNotificationManager returns a manager backed by the provided client.
func NewHTTPNotificationManager(client graphql.Client) *HTTPNotificationManager {
	if client == nil {
		panic("graphql client must not be nil")
	}
	return &HTTPNotificationManager{client: client}
}

// route is the REST endpoint for an action. A %s in path is replaced with the
// notification id.
type route struct {
	method string
	path   string
}

var actionRoutes = map[ActionKind]route{
	ActionMarkRead:    {http.MethodPost, "notifications/%s/read"},
	ActionMarkUnread:  {http.MethodPost, "notifications/%s/unread"},
	ActionArchive:     {http.MethodPost, "notifications/%s/archive"},
	ActionUnarchive:   {http.MethodDelete, "notifications/%s/archive"},
	ActionMarkAllRead: {http.MethodPost, "notifications/read"},
	ActionMarkAllSeen: {http.MethodPost, "notifications/seen"},
}

// validateID rejects notification ids that are empty or contain characters
// that would change the request path.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("invalid notification id: empty string")
	}
	if strings.ContainsAny(id, "\"'\\/?#% ") {
		return fmt.Errorf("invalid notification id: %q", id)
	}
	return nil
}

// PerformAction issues the REST call for kind. Single-item kinds require a
// valid notificationID; bulk kinds reject one.
func (m *HTTPNotificationManager) PerformAction(ctx context.Context, kind ActionKind, notificationID string, user identity.User) error {
	r, ok := actionRoutes[kind]
	if !ok {
		return fmt.Errorf("notifications action: unknown action %q", kind)
	}

	path := r.path
	if kind.RequiresID() {
		if err := validateID(notificationID); err != nil {
			return fmt.Errorf("notifications %s: %w", kind, err)
		}
		path = fmt.Sprintf(r.path, notificationID)
	} else if notificationID != "" {
		return fmt.Errorf("notifications %s: bulk action does not take a notification id", kind)
	}

	if _, err := m.client.Do(ctx, r.method, path, user); err != nil {
		return fmt.Errorf("notifications %s: %w", kind, err)
	}
	return nil
}

// Delete permanently deletes the notification with the given id.
func (m *HTTPNotificationManager) Delete(ctx context.Context, id string, user identity.User) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("notifications delete: %w", err)
	}
	if _, err := m.client.Do(ctx, http.MethodDelete, "notifications/"+id, user); err != nil {
		return fmt.Errorf("notifications delete: %w", err)
	}
	return nil
}

// restNotification is the REST representation: snake_case keys and unix
// second timestamps.
type restNotification struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Content          *string         `json:"content"`
	ActionURL        *string         `json:"action_url"`
	Category         *string         `json:"category"`
	Topic            *string         `json:"topic"`
	CustomAttributes json.RawMessage `json:"custom_attributes"`
	SentAt           *int64          `json:"sent_at"`
	ReadAt           *int64          `json:"read_at"`
	SeenAt           *int64          `json:"seen_at"`
	ArchivedAt       *int64          `json:"archived_at"`
}

type getResponse struct {
	Notification *restNotification `json:"notification"`
}

// Get fetches a single notification by id.
func (m *HTTPNotificationManager) Get(ctx context.Context, id string, user identity.User) (Notification, error) {
	if err := validateID(id); err != nil {
		return Notification{}, fmt.Errorf("notifications get: %w", err)
	}

	data, err := m.client.Do(ctx, http.MethodGet, "notifications/"+id, user)
	if err != nil {
		return Notification{}, fmt.Errorf("notifications get: %w", err)
	}

	var resp getResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Notification{}, fmt.Errorf("notifications get: parse response: %w: %w", graphql.ErrDecode, err)
	}
	if resp.Notification == nil || resp.Notification.ID == "" {
		return Notification{}, fmt.Errorf("notifications get: %w: response has no notification", graphql.ErrDecode)
	}

	return resp.Notification.toNotification(), nil
}

func (r restNotification) toNotification() Notification {
	return Notification{
		ID:               r.ID,
		Title:            r.Title,
		Content:          r.Content,
		ActionURL:        r.ActionURL,
		Category:         r.Category,
		Topic:            r.Topic,
		CustomAttributes: r.CustomAttributes,
		SentAt:           unixTime(r.SentAt),
		ReadAt:           unixTime(r.ReadAt),
		SeenAt:           unixTime(r.SeenAt),
		ArchivedAt:       unixTime(r.ArchivedAt),
	}
}

func unixTime(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
