package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sipmvp/callbridge/internal/storage"
)

// actionsKey is the storage slot holding the pending action queue as a JSON
// array, oldest entry first.
const actionsKey = "callbridge.v1.pending_call_actions"

const (
	// maxQueueEntries bounds the pending action queue; the oldest entry is
	// evicted when the bound is exceeded.
	maxQueueEntries = 10

	// dedupWindowMs is the span within which a repeated identical action is
	// discarded rather than recorded twice.
	dedupWindowMs = 2000

	// drainCutoffMs is the maximum age of an entry returned from a drain.
	drainCutoffMs = 120000
)

// ActionType is a user call action captured from a notification.
type ActionType string

// Supported call actions.
const (
	ActionAnswer  ActionType = "answer"
	ActionDecline ActionType = "decline"
)

// Valid reports whether a is a recognized call action.
func (a ActionType) Valid() bool {
	return a == ActionAnswer || a == ActionDecline
}

// ActionEntry is one pending user action awaiting an application-layer drain.
type ActionEntry struct {
	Action      ActionType
	CallID      string
	TimestampMs int64
}

// actionRecord is the stored shape of an entry. Each field is written twice,
// under the current name and the legacy name, so records survive schema drift
// in both directions. The legacy names are a compatibility shim and can go
// once all producers are current.
type actionRecord struct {
	Type         string `json:"type,omitempty"`
	CallID       string `json:"callId,omitempty"`
	TS           int64  `json:"ts,omitempty"`
	LegacyAction string `json:"action,omitempty"`
	LegacyCallID string `json:"call_id,omitempty"`
	LegacyTS     int64  `json:"timestamp,omitempty"`
}

func (r actionRecord) action() string {
	if r.Type != "" {
		return r.Type
	}
	return r.LegacyAction
}

func (r actionRecord) callID() string {
	if r.CallID != "" {
		return r.CallID
	}
	return r.LegacyCallID
}

func (r actionRecord) timestampMs() int64 {
	if r.TS != 0 {
		return r.TS
	}
	return r.LegacyTS
}

// ActionQueue is the durable, bounded, deduplicated queue of call actions
// captured while the application engine may not be alive to consume them.
// All read-modify-write sequences hold a single process-wide lock so racing
// event handlers cannot lose updates.
type ActionQueue struct {
	mu sync.Mutex
	kv storage.KV
}

// NewActionQueue creates an action queue over the given backing store.
func NewActionQueue(kv storage.KV) *ActionQueue {
	return &ActionQueue{kv: kv}
}

// Enqueue appends an action to the queue. A second identical (action, callID)
// pair within the dedup window is rejected with accepted=false and the queue
// unchanged. When the bound is exceeded the oldest entries are evicted.
func (q *ActionQueue) Enqueue(ctx context.Context, callID string, action ActionType, tsMs int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.load(ctx)
	if err != nil {
		return false, err
	}

	for _, r := range records {
		if r.action() != string(action) || r.callID() != callID {
			continue
		}
		prev := r.timestampMs()
		if prev <= 0 {
			continue
		}
		delta := tsMs - prev
		if delta < 0 {
			delta = -delta
		}
		if delta <= dedupWindowMs {
			slog.Debug("pending action deduped", "action", action, "call_id", callID)
			return false, nil
		}
	}

	records = append(records, actionRecord{
		Type:         string(action),
		CallID:       callID,
		TS:           tsMs,
		LegacyAction: string(action),
		LegacyCallID: callID,
		LegacyTS:     tsMs,
	})
	for len(records) > maxQueueEntries {
		records = records[1:]
	}

	if err := q.store(ctx, records); err != nil {
		return false, err
	}

	slog.Debug("pending action enqueued", "action", action, "call_id", callID, "ts", tsMs)
	return true, nil
}

// DrainExpired atomically reads and clears the queue, returning the entries
// no older than the drain cutoff relative to nowMs, in original order. This
// is a destructive read: the backing store is emptied regardless of the
// filtering outcome, so callers must handle the returned actions
// idempotently.
func (q *ActionQueue) DrainExpired(ctx context.Context, nowMs int64) ([]ActionEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.load(ctx)
	if err != nil {
		return nil, err
	}

	if err := q.kv.Delete(ctx, actionsKey); err != nil {
		return nil, fmt.Errorf("clearing pending actions: %w", err)
	}

	var entries []ActionEntry
	for _, r := range records {
		ts := r.timestampMs()
		if nowMs-ts > drainCutoffMs {
			continue
		}
		entries = append(entries, ActionEntry{
			Action:      ActionType(r.action()),
			CallID:      r.callID(),
			TimestampMs: ts,
		})
	}

	slog.Debug("pending actions drained", "stored", len(records), "returned", len(entries))
	return entries, nil
}

// Depth returns the number of stored entries. Used for observability only.
func (q *ActionQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// load reads the stored queue. An absent or undecodable value is an empty
// queue; only storage-layer errors propagate.
func (q *ActionQueue) load(ctx context.Context) ([]actionRecord, error) {
	raw, ok, err := q.kv.Get(ctx, actionsKey)
	if err != nil {
		return nil, fmt.Errorf("reading pending actions: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var records []actionRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		slog.Warn("dropping corrupt pending action queue", "error", err)
		return nil, nil
	}
	return records, nil
}

func (q *ActionQueue) store(ctx context.Context, records []actionRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding pending actions: %w", err)
	}
	if err := q.kv.Set(ctx, actionsKey, string(data)); err != nil {
		return fmt.Errorf("persisting pending actions: %w", err)
	}
	return nil
}
