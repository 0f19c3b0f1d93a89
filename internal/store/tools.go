package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/magicbell-io/magicbell-go/internal/logging"
	"github.com/magicbell-io/magicbell-go/internal/notifications"
	"github.com/magicbell-io/magicbell-go/internal/safety"
	"github.com/magicbell-io/magicbell-go/internal/tools"
)

// Feed tool action names, as accepted by feed_action and matched by the
// safety filter.
const (
	actionMarkRead    = "mark_read"
	actionMarkUnread  = "mark_unread"
	actionArchive     = "archive"
	actionUnarchive   = "unarchive"
	actionDelete      = "delete"
	actionMarkAllRead = "mark_all_read"
	actionMarkAllSeen = "mark_all_seen"
)

// DestructiveActions lists feed_action actions that require confirmation.
var DestructiveActions = []string{actionDelete, actionMarkAllRead, actionMarkAllSeen}

var validActions = []string{
	actionMarkRead, actionMarkUnread, actionArchive, actionUnarchive,
	actionDelete, actionMarkAllRead, actionMarkAllSeen,
}

// FeedTools returns the MCP tool registrations for browsing and acting on the
// director's feeds: feed_list, feed_counts and feed_action.
func FeedTools(d *Director, filter *safety.Filter, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolFeedList(d, audit),
		toolFeedCounts(d, audit),
		toolFeedAction(d, filter, confirm, audit),
	}
}

// predicateOptions are the tool arguments that select a store.
func predicateOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("read",
			mcp.Description("Only read (true) or unread (false) notifications; omit for both"),
			mcp.Enum("true", "false"),
		),
		mcp.WithString("seen",
			mcp.Description("Only seen (true) or unseen (false) notifications; omit for both"),
			mcp.Enum("true", "false"),
		),
		mcp.WithBoolean("archived",
			mcp.Description("Include archived notifications (default: false)"),
		),
		mcp.WithString("categories",
			mcp.Description("Comma-separated categories to include; omit for all"),
		),
		mcp.WithString("topics",
			mcp.Description("Comma-separated topics to include; omit for all"),
		),
	}
}

// predicateFromRequest builds the predicate described by req's arguments and
// the params recorded for auditing.
func predicateFromRequest(req mcp.CallToolRequest) (Predicate, map[string]any, error) {
	var p Predicate
	params := map[string]any{}

	for name, dst := range map[string]**bool{"read": &p.Read, "seen": &p.Seen} {
		switch v := strings.ToLower(strings.TrimSpace(req.GetString(name, ""))); v {
		case "":
		case "true", "false":
			*dst = Bool(v == "true")
			params[name] = v
		default:
			return Predicate{}, params, fmt.Errorf("%s must be true or false, got %q", name, v)
		}
	}

	p.Archived = req.GetBool("archived", false)
	params["archived"] = p.Archived

	p.Categories = splitList(req.GetString("categories", ""))
	if len(p.Categories) > 0 {
		params["categories"] = p.Categories
	}
	p.Topics = splitList(req.GetString("topics", ""))
	if len(p.Topics) > 0 {
		params["topics"] = p.Topics
	}
	return p, params, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// feedView is the JSON shape returned by feed_list.
type feedView struct {
	Predicate     string                       `json:"predicate"`
	Counts        Counters                     `json:"counts"`
	HasNextPage   bool                         `json:"has_next_page"`
	Cached        int                          `json:"cached"`
	Notifications []notifications.Notification `json:"notifications"`
}

// toolFeedList constructs the feed_list Registration.
func toolFeedList(d *Director, audit *safety.AuditLogger) tools.Registration {
	const toolName = "feed_list"

	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Load notifications into the feed for a filter. Each call returns the next page; refresh=true starts over from the first page."),
		mcp.WithBoolean("refresh",
			mcp.Description("Discard the cached feed and reload the first page (default: false)"),
		),
	}, predicateOptions()...)
	tool := mcp.NewTool(toolName, opts...)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, params, err := predicateFromRequest(req)
		refresh := req.GetBool("refresh", false)
		params["refresh"] = refresh

		inv := tools.Begin(audit, logging.Component("mcp"), toolName, d.User().Key(), params)
		if err != nil {
			return inv.Fail(err), nil
		}

		s := d.With(p)
		var page []notifications.Notification
		if refresh {
			page, err = s.Refresh(ctx)
		} else {
			page, err = s.Fetch(ctx)
		}
		if err != nil {
			return inv.Fail(err), nil
		}

		st := s.Snapshot()
		inv.Finish(fmt.Sprintf("ok: %d notifications", len(page)))
		return tools.JSONResult(feedView{
			Predicate:     p.Key(),
			Counts:        st.Counters,
			HasNextPage:   st.HasNextPage,
			Cached:        len(st.Notifications),
			Notifications: page,
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// toolFeedCounts constructs the feed_counts Registration.
func toolFeedCounts(d *Director, audit *safety.AuditLogger) tools.Registration {
	const toolName = "feed_counts"

	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Show the total, unread and unseen counters of the feed for a filter. Loads the first page if the feed is empty."),
	}, predicateOptions()...)
	tool := mcp.NewTool(toolName, opts...)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, params, err := predicateFromRequest(req)
		inv := tools.Begin(audit, logging.Component("mcp"), toolName, d.User().Key(), params)
		if err != nil {
			return inv.Fail(err), nil
		}

		s := d.With(p)
		if s.Len() == 0 && s.HasNextPage() {
			if _, err := s.Refresh(ctx); err != nil {
				return inv.Fail(err), nil
			}
		}

		c := s.Counters()
		inv.Finish("ok")
		return tools.JSONResult(c), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// toolFeedAction constructs the feed_action Registration.
func toolFeedAction(d *Director, filter *safety.Filter, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	const toolName = "feed_action"

	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Act on notifications in the feed for a filter: " + strings.Join(validActions, ", ") +
			". delete, mark_all_read and mark_all_seen require a confirmation token."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Action to perform: "+strings.Join(validActions, ", ")),
			mcp.Enum(validActions...),
		),
		mcp.WithString("id",
			mcp.Description("Notification ID (required for single-notification actions)"),
		),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call for destructive actions"),
		),
	}, predicateOptions()...)
	tool := mcp.NewTool(toolName, opts...)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, params, err := predicateFromRequest(req)
		action := strings.ToLower(strings.TrimSpace(req.GetString("action", "")))
		id := strings.TrimSpace(req.GetString("id", ""))
		token := req.GetString("confirmation_token", "")
		params["action"] = action
		if id != "" {
			params["id"] = id
		}

		inv := tools.Begin(audit, logging.Component("mcp"), toolName, d.User().Key(), params)
		if err != nil {
			return inv.Fail(err), nil
		}
		if err := validateAction(action, id); err != nil {
			return inv.Fail(err), nil
		}
		if err := filter.Check(action); err != nil {
			return inv.Fail(err), nil
		}

		if confirm != nil && confirm.NeedsConfirmation(action) {
			resource := confirmResource(action, id, p)
			if !confirm.Confirm(token, toolName, resource) {
				inv.Finish("confirmation requested")
				return tools.ConfirmPrompt(confirm, toolName, resource, describeAction(action, id)), nil
			}
		}

		s := d.With(p)
		target, ok := s.Get(id)
		if !ok {
			target = notifications.Notification{ID: id}
		}

		var updated notifications.Notification
		switch action {
		case actionMarkRead:
			updated, err = s.MarkAsRead(ctx, target)
		case actionMarkUnread:
			updated, err = s.MarkAsUnread(ctx, target)
		case actionArchive:
			updated, err = s.Archive(ctx, target)
		case actionUnarchive:
			updated, err = s.Unarchive(ctx, target)
		case actionDelete:
			err = s.Delete(ctx, target)
		case actionMarkAllRead:
			err = s.MarkAllNotificationAsRead(ctx)
		case actionMarkAllSeen:
			err = s.MarkAllNotificationAsSeen(ctx)
		}
		if err != nil {
			return inv.Fail(err), nil
		}

		inv.Finish("ok")
		result := map[string]any{
			"action": action,
			"counts": s.Counters(),
		}
		if updated.ID != "" {
			result["notification"] = updated
		}
		return tools.JSONResult(result), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func validateAction(action, id string) error {
	switch action {
	case actionMarkRead, actionMarkUnread, actionArchive, actionUnarchive, actionDelete:
		if id == "" {
			return fmt.Errorf("action %q requires an id parameter", action)
		}
	case actionMarkAllRead, actionMarkAllSeen:
		if id != "" {
			return fmt.Errorf("action %q does not take an id parameter", action)
		}
	default:
		return fmt.Errorf("unknown action %q: valid actions are %s", action, strings.Join(validActions, ", "))
	}
	return nil
}

// confirmResource names what a confirmation token authorizes. Bulk actions
// are scoped to the feed they were requested for.
func confirmResource(action, id string, p Predicate) string {
	if id != "" {
		return action + " " + id
	}
	return action + " [" + p.Key() + "]"
}

func describeAction(action, id string) string {
	switch action {
	case actionDelete:
		return fmt.Sprintf("This will permanently delete notification %s. This cannot be undone.", id)
	case actionMarkAllRead:
		return "This will mark every notification of the user as read."
	default:
		return "This will mark every notification of the user as seen."
	}
}
