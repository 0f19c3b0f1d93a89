// Package safety gates feed actions exposed to MCP clients: an allow/deny
// filter on action names, confirmation tokens for destructive actions, and a
// JSONL audit log.
package safety

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrActionDenied is returned by Filter.Check for actions the filter rejects.
var ErrActionDenied = errors.New("action denied by safety filter")

// Filter controls which feed actions may run, using an allowlist and a
// denylist of glob patterns (as understood by filepath.Match). Names are
// compared case-insensitively.
//
// Rules:
//   - If both lists are empty (or nil), every action is allowed.
//   - Denylist always takes priority over the allowlist.
//   - If a non-empty allowlist is present, an action must match at least one
//     allowlist pattern to be permitted (after the denylist check).
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter constructs a Filter from the provided allowlist and denylist
// pattern slices. Either or both may be nil or empty.
func NewFilter(allowlist, denylist []string) *Filter {
	return &Filter{
		allowlist: lowerAll(allowlist),
		denylist:  lowerAll(denylist),
	}
}

func lowerAll(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsAllowed reports whether action is permitted by this filter. A nil filter
// allows everything.
func (f *Filter) IsAllowed(action string) bool {
	if f == nil {
		return true
	}
	action = strings.ToLower(action)

	for _, pattern := range f.denylist {
		if matchGlob(pattern, action) {
			return false
		}
	}

	if len(f.allowlist) == 0 {
		return true
	}

	for _, pattern := range f.allowlist {
		if matchGlob(pattern, action) {
			return true
		}
	}
	return false
}

// Check returns an error wrapping ErrActionDenied when action is not allowed.
func (f *Filter) Check(action string) error {
	if !f.IsAllowed(action) {
		return fmt.Errorf("%w: %q", ErrActionDenied, action)
	}
	return nil
}

// matchGlob returns true when name matches the given glob pattern.
// filepath.Match errors (malformed patterns) are treated as non-matching.
func matchGlob(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
