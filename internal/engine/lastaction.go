package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sipmvp/callbridge/internal/storage"
)

// lastActionKey is the single storage slot for the most recent call action.
const lastActionKey = "callbridge.v1.last_call_action"

// CallAction is the legacy single-slot "most recent action" record kept
// alongside the pending action queue for callers that predate it.
type CallAction struct {
	CallID      string     `json:"call_id"`
	Action      ActionType `json:"action"`
	TimestampMs int64      `json:"timestamp"`
}

// LastActionStore holds the most recent call action, one slot, overwritten
// per call.
type LastActionStore struct {
	kv storage.KV
}

// NewLastActionStore creates a last-action store over the given backing store.
func NewLastActionStore(kv storage.KV) *LastActionStore {
	return &LastActionStore{kv: kv}
}

// Save overwrites the slot with the given action.
func (s *LastActionStore) Save(ctx context.Context, callID string, action ActionType, tsMs int64) error {
	data, err := json.Marshal(CallAction{CallID: callID, Action: action, TimestampMs: tsMs})
	if err != nil {
		return fmt.Errorf("encoding last action: %w", err)
	}
	if err := s.kv.Set(ctx, lastActionKey, string(data)); err != nil {
		return fmt.Errorf("persisting last action: %w", err)
	}
	return nil
}

// Read returns the stored action, or ok=false if the slot is empty. A record
// that cannot be decoded is dropped and reported as absent.
func (s *LastActionStore) Read(ctx context.Context) (CallAction, bool, error) {
	raw, ok, err := s.kv.Get(ctx, lastActionKey)
	if err != nil {
		return CallAction{}, false, fmt.Errorf("reading last action: %w", err)
	}
	if !ok {
		return CallAction{}, false, nil
	}

	var action CallAction
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		slog.Warn("dropping corrupt last action record", "error", err)
		return CallAction{}, false, nil
	}
	return action, true, nil
}

// Clear empties the slot. Clearing an empty slot succeeds.
func (s *LastActionStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, lastActionKey); err != nil {
		return fmt.Errorf("clearing last action: %w", err)
	}
	return nil
}
