package engine

import (
	"testing"
	"time"
)

func TestPayloadExpiry(t *testing.T) {
	payload := CallPayload{"type": "incoming_call", "call_id": "c1", "ts": "1000", "ttl_s": "30"}

	// Boundary is ts + ttl_s + 5 = 1035; expiry requires now > boundary.
	cases := []struct {
		nowSec  int64
		expired bool
	}{
		{1034, false},
		{1035, false},
		{1036, true},
	}
	for _, tc := range cases {
		got := payload.Expired(time.Unix(tc.nowSec, 0))
		if got != tc.expired {
			t.Errorf("Expired(now=%d) = %v, want %v", tc.nowSec, got, tc.expired)
		}
	}
}

func TestPayloadExpiryMissingFields(t *testing.T) {
	now := time.Unix(999999999, 0)

	cases := []CallPayload{
		{"type": "incoming_call", "call_id": "c1"},
		{"type": "incoming_call", "call_id": "c1", "ts": "1000"},
		{"type": "incoming_call", "call_id": "c1", "ttl_s": "30"},
		{"type": "incoming_call", "call_id": "c1", "ts": "bogus", "ttl_s": "30"},
	}
	for i, p := range cases {
		if p.Expired(now) {
			t.Errorf("case %d: payload without full ts/ttl_s must never expire", i)
		}
	}
}

func TestPayloadCallUUIDFallback(t *testing.T) {
	p := CallPayload{"call_id": "c1"}
	if got := p.CallUUID(); got != "c1" {
		t.Errorf("CallUUID() = %q, want fallback to call_id", got)
	}

	p["call_uuid"] = "u1"
	if got := p.CallUUID(); got != "u1" {
		t.Errorf("CallUUID() = %q, want u1", got)
	}
}

func TestValidCallID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"c1", true},
		{"", false},
		{"   ", false},
		{"<none>", false},
		{" <none> ", false},
	}
	for _, tc := range cases {
		if got := ValidCallID(tc.id); got != tc.valid {
			t.Errorf("ValidCallID(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}
