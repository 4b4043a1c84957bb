package engine

import (
	"strconv"
	"strings"
	"time"
)

// Push payload event types.
const (
	TypeIncomingCall  = "incoming_call"
	TypeCallCancelled = "call_cancelled"
)

// PlaceholderCallID is the sentinel some upstream senders use when no call
// identifier is available. It is never a valid identifier.
const PlaceholderCallID = "<none>"

// expiryGraceSeconds is added to ts + ttl_s before a push is considered stale.
const expiryGraceSeconds = 5

// CallPayload is the opaque string-to-string push payload as delivered by the
// push transport. Required fields are parsed eagerly at the boundary; the rest
// is carried through untouched for the application layer.
type CallPayload map[string]string

// Type returns the event type field ("incoming_call", "call_cancelled").
func (p CallPayload) Type() string { return p["type"] }

// CallID returns the call identifier field.
func (p CallPayload) CallID() string { return p["call_id"] }

// From returns the caller address field.
func (p CallPayload) From() string { return p["from"] }

// DisplayName returns the caller display name, if any.
func (p CallPayload) DisplayName() string { return p["display_name"] }

// CallUUID returns the alternate call identifier, falling back to the call ID
// when absent.
func (p CallPayload) CallUUID() string {
	if uuid := p["call_uuid"]; uuid != "" {
		return uuid
	}
	return p.CallID()
}

// Expired reports whether the payload's delivery window has passed. A payload
// carrying both ts (seconds since epoch) and ttl_s is expired once
// now > ts + ttl_s + 5; missing or unparseable fields mean never expires.
func (p CallPayload) Expired(now time.Time) bool {
	ts, ok := parseSeconds(p["ts"])
	if !ok {
		return false
	}
	ttl, ok := parseSeconds(p["ttl_s"])
	if !ok {
		return false
	}
	return now.Unix() > ts+ttl+expiryGraceSeconds
}

func parseSeconds(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ValidCallID reports whether id is usable as a call identifier: non-blank
// and not the upstream placeholder.
func ValidCallID(id string) bool {
	trimmed := strings.TrimSpace(id)
	return trimmed != "" && trimmed != PlaceholderCallID
}
