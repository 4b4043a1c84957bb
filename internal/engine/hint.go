package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sipmvp/callbridge/internal/storage"
)

// hintKey is the single storage slot for the pending incoming-call hint.
const hintKey = "callbridge.v1.pending_incoming_hint"

// hintTimestampLayout is the ISO-8601 UTC format recorded on each hint.
const hintTimestampLayout = "2006-01-02T15:04:05.000Z"

// HintRecord is a persisted snapshot of an incoming-call push payload, kept
// until consumed by the application layer or superseded by a newer call.
type HintRecord struct {
	Timestamp string            `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// HintStore holds at most one pending incoming-call hint in encrypted
// storage. Last write wins; no other component touches the slot.
type HintStore struct {
	kv  storage.KV
	now func() time.Time
}

// NewHintStore creates a hint store over the given (secure) backing store.
func NewHintStore(kv storage.KV) *HintStore {
	return &HintStore{kv: kv, now: time.Now}
}

// Persist overwrites the hint slot with a record for the given payload,
// stamped with the current UTC time. Write failures are returned to the
// caller; call delivery continues without a durable backup.
func (s *HintStore) Persist(ctx context.Context, payload CallPayload) error {
	record := HintRecord{
		Timestamp: s.now().UTC().Format(hintTimestampLayout),
		Payload:   payload,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding pending hint: %w", err)
	}

	if err := s.kv.Set(ctx, hintKey, string(data)); err != nil {
		return fmt.Errorf("persisting pending hint: %w", err)
	}

	slog.Debug("pending hint persisted", "bytes", len(data), "call_id", payload.CallID())
	return nil
}

// Read returns the stored hint, or ok=false if none is stored. A record that
// cannot be decoded is dropped and reported as absent; only storage-layer
// errors propagate.
func (s *HintStore) Read(ctx context.Context) (HintRecord, bool, error) {
	raw, ok, err := s.kv.Get(ctx, hintKey)
	if errors.Is(err, storage.ErrCorrupt) {
		slog.Warn("dropping corrupt pending hint", "error", err)
		return HintRecord{}, false, nil
	}
	if err != nil {
		return HintRecord{}, false, fmt.Errorf("reading pending hint: %w", err)
	}
	if !ok {
		return HintRecord{}, false, nil
	}

	var record HintRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		slog.Warn("dropping corrupt pending hint", "error", err)
		return HintRecord{}, false, nil
	}
	return record, true, nil
}

// Clear removes the hint. Clearing an empty slot succeeds.
func (s *HintStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, hintKey); err != nil {
		return fmt.Errorf("clearing pending hint: %w", err)
	}
	return nil
}
