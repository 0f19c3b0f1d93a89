// Package tools provides shared helper utilities for MCP tool handlers.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/magicbell-io/magicbell-go/internal/safety"
)

// JSONResult marshals v to indented JSON and returns an mcp.CallToolResult.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns an mcp.CallToolResult that describes an error condition.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultText(fmt.Sprintf("error: %s", msg))
}

// Invocation tracks one tool call from start to audit record.
type Invocation struct {
	RequestID string
	Tool      string
	User      string
	Params    map[string]any
	Start     time.Time

	audit  *safety.AuditLogger
	logger zerolog.Logger
}

// Begin starts tracking a call to tool on behalf of user. The returned
// invocation carries a fresh request id shared by its log lines and audit
// entry.
func Begin(audit *safety.AuditLogger, logger zerolog.Logger, tool, user string, params map[string]any) *Invocation {
	id := uuid.NewString()
	return &Invocation{
		RequestID: id,
		Tool:      tool,
		User:      user,
		Params:    params,
		Start:     time.Now(),
		audit:     audit,
		logger:    logger.With().Str("request_id", id).Str("tool", tool).Logger(),
	}
}

// Finish logs the outcome and writes the audit entry. A nil audit logger is
// skipped silently. Results starting with "error" are logged at warn level.
func (inv *Invocation) Finish(result string) {
	elapsed := time.Since(inv.Start)

	ev := inv.logger.Debug()
	if strings.HasPrefix(result, "error") {
		ev = inv.logger.Warn()
	}
	ev.Dur("elapsed", elapsed).Str("result", result).Msg("tool call")

	if inv.audit == nil {
		return
	}
	if err := inv.audit.Log(safety.AuditEntry{
		RequestID: inv.RequestID,
		Timestamp: inv.Start,
		Tool:      inv.Tool,
		User:      inv.User,
		Params:    inv.Params,
		Result:    result,
		Duration:  elapsed,
	}); err != nil {
		inv.logger.Error().Err(err).Msg("write audit entry")
	}
}

// Fail finishes the invocation with err and returns the matching result.
func (inv *Invocation) Fail(err error) *mcp.CallToolResult {
	inv.Finish("error: " + err.Error())
	return ErrorResult(err.Error())
}

// ConfirmPrompt issues a confirmation token bound to toolName and resource
// and returns the prompt asking the caller to repeat the call with it.
func ConfirmPrompt(confirm *safety.ConfirmationTracker, toolName, resource, description string) *mcp.CallToolResult {
	token := confirm.RequestConfirmation(toolName, resource, description)
	return mcp.NewToolResultText(fmt.Sprintf(
		"Confirmation required for %s on %q.\n\n%s\n\nTo proceed, call %s again with the same arguments and confirmation_token=%q.",
		toolName, resource, description, toolName, token,
	))
}
