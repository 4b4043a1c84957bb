package engine

import (
	"context"
	"testing"
	"time"
)

func TestHintSingleSlotOverwrite(t *testing.T) {
	s := NewHintStore(newMemKV())
	ctx := context.Background()

	a := CallPayload{"type": "incoming_call", "call_id": "a", "from": "100"}
	b := CallPayload{"type": "incoming_call", "call_id": "b", "from": "200"}

	if err := s.Persist(ctx, a); err != nil {
		t.Fatalf("Persist(a) error: %v", err)
	}
	if err := s.Persist(ctx, b); err != nil {
		t.Fatalf("Persist(b) error: %v", err)
	}

	record, ok, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored hint")
	}
	if record.Payload["call_id"] != "b" {
		t.Errorf("stored hint call_id = %q, want b (last write wins)", record.Payload["call_id"])
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, ok, _ := s.Read(ctx); ok {
		t.Error("expected hint absent after clear")
	}

	// Clearing an already-empty slot succeeds.
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error: %v", err)
	}
}

func TestHintTimestampFormat(t *testing.T) {
	s := NewHintStore(newMemKV())
	s.now = func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 600_000_000, time.UTC)
	}
	ctx := context.Background()

	if err := s.Persist(ctx, CallPayload{"call_id": "c1"}); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}

	record, ok, _ := s.Read(ctx)
	if !ok {
		t.Fatal("expected a stored hint")
	}
	if record.Timestamp != "2026-01-02T03:04:05.600Z" {
		t.Errorf("timestamp = %q, want ISO-8601 UTC with millis", record.Timestamp)
	}
}

func TestHintCorruptRecordTreatedAsAbsent(t *testing.T) {
	kv := newMemKV()
	s := NewHintStore(kv)
	ctx := context.Background()

	kv.Set(ctx, hintKey, "{definitely not json")

	_, ok, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() of corrupt hint must not error, got: %v", err)
	}
	if ok {
		t.Error("corrupt hint must be reported as absent")
	}
}
