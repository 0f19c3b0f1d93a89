package safety

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const tokenTTL = 5 * time.Minute

// pendingConfirmation is an outstanding confirmation token. A token only
// confirms the tool and resource it was issued for.
type pendingConfirmation struct {
	tool        string
	resource    string
	description string
	createdAt   time.Time
}

// ConfirmationTracker manages single-use, time-limited confirmation tokens for
// destructive feed actions such as deletes and bulk updates.
type ConfirmationTracker struct {
	destructive map[string]struct{}
	now         func() time.Time

	mu     sync.Mutex
	tokens map[string]*pendingConfirmation
}

// NewConfirmationTracker returns a tracker for which every name in
// destructive requires confirmation. A nil or empty slice means nothing does.
func NewConfirmationTracker(destructive []string) *ConfirmationTracker {
	ct := &ConfirmationTracker{
		destructive: make(map[string]struct{}, len(destructive)),
		now:         time.Now,
		tokens:      make(map[string]*pendingConfirmation),
	}
	for _, name := range destructive {
		ct.destructive[name] = struct{}{}
	}
	return ct
}

// NeedsConfirmation reports whether name is in the destructive set.
func (ct *ConfirmationTracker) NeedsConfirmation(name string) bool {
	_, ok := ct.destructive[name]
	return ok
}

// sweepExpired drops tokens older than tokenTTL. ct.mu must be held.
func (ct *ConfirmationTracker) sweepExpired() {
	now := ct.now()
	for token, pending := range ct.tokens {
		if now.Sub(pending.createdAt) > tokenTTL {
			delete(ct.tokens, token)
		}
	}
}

// RequestConfirmation issues a token for tool acting on resource. Tokens are
// valid for 5 minutes and can be used once.
func (ct *ConfirmationTracker) RequestConfirmation(tool, resource, description string) string {
	token := uuid.NewString()

	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.sweepExpired()
	ct.tokens[token] = &pendingConfirmation{
		tool:        tool,
		resource:    resource,
		description: description,
		createdAt:   ct.now(),
	}
	return token
}

// Confirm consumes token and reports whether it was issued for the same tool
// and resource and has not expired. A token presented for a different resource
// is still consumed.
func (ct *ConfirmationTracker) Confirm(token, tool, resource string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	pending, ok := ct.tokens[token]
	if !ok {
		return false
	}
	delete(ct.tokens, token)

	if ct.now().Sub(pending.createdAt) > tokenTTL {
		return false
	}
	return pending.tool == tool && pending.resource == resource
}

// Pending returns the number of unexpired tokens.
func (ct *ConfirmationTracker) Pending() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.sweepExpired()
	return len(ct.tokens)
}
