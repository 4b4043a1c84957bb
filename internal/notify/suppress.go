package notify

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// suppressionTTL is how long a call stays suppressed after an action. It only
// needs to cover in-flight duplicate push delivery, not call state.
const suppressionTTL = 2 * time.Second

// placeholderKey is the upstream sentinel for a missing identifier; it is
// never suppressible.
const placeholderKey = "<none>"

// SuppressionTracker is a time-windowed, in-memory record of call identifiers
// that must not re-trigger a notification because an action was already taken.
// State is process-lifetime only; losing it on restart is acceptable.
type SuppressionTracker struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time
}

// NewSuppressionTracker creates an empty tracker.
func NewSuppressionTracker() *SuppressionTracker {
	return &SuppressionTracker{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Mark suppresses each non-blank, non-placeholder key for the TTL.
// Idempotent; re-marking extends the window.
func (t *SuppressionTracker) Mark(keys ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.purgeLocked(now)

	var added []string
	for _, key := range keys {
		if strings.TrimSpace(key) == "" || key == placeholderKey {
			continue
		}
		t.expiry[key] = now.Add(suppressionTTL)
		added = append(added, key)
	}
	if len(added) > 0 {
		slog.Debug("suppression marked", "keys", added, "ttl", suppressionTTL)
	}
}

// IsSuppressed reports whether either identifier form is actively suppressed.
// alternate may be empty.
func (t *SuppressionTracker) IsSuppressed(primary, alternate string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.purgeLocked(now)

	if _, ok := t.expiry[primary]; ok && primary != "" {
		return true
	}
	if alternate != "" {
		if _, ok := t.expiry[alternate]; ok {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of unexpired suppressions. Observability only.
func (t *SuppressionTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.purgeLocked(t.now())
	return len(t.expiry)
}

// purgeLocked removes expired entries. Callers hold the lock; the purge and
// the following operation share one clock snapshot and one critical section.
func (t *SuppressionTracker) purgeLocked(now time.Time) {
	for key, expiresAt := range t.expiry {
		if !now.Before(expiresAt) {
			delete(t.expiry, key)
		}
	}
}

// SetClock overrides the tracker's clock. Tests only.
func (t *SuppressionTracker) SetClock(now func() time.Time) {
	t.now = now
}
