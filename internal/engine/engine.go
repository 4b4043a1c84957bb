// Package engine implements the incoming-call lifecycle: durable pending
// state between push arrival and application-layer resume, and the decisions
// that drive the notification presenter.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sipmvp/callbridge/internal/storage"
)

// engineAliveKey is the persisted flag set by the application layer while its
// live call-handling engine is running.
const engineAliveKey = "callbridge.v1.engine_alive"

// ErrInvalidArgument marks an event rejected at the boundary (missing or
// placeholder call ID, unknown action). The operation is a no-op.
var ErrInvalidArgument = errors.New("invalid argument")

// PushOutcome describes how an inbound push was handled.
type PushOutcome string

// Push handling outcomes.
const (
	OutcomeDelivered   PushOutcome = "delivered"
	OutcomeEngineAlive PushOutcome = "engine_alive"
	OutcomeExpired     PushOutcome = "expired"
	OutcomeSuppressed  PushOutcome = "suppressed"
	OutcomeCancelled   PushOutcome = "cancelled"
	OutcomeInvalid     PushOutcome = "invalid"
)

// Notifier presents, refreshes and cancels incoming-call alerts. Implemented
// by notify.Controller; mocked in tests. ShowIncoming returns shown=false
// with a nil error when the call is suppressed.
type Notifier interface {
	ShowIncoming(callID, from, displayName, callUUID string, ringing bool) (bool, error)
	Cancel(callID, callUUID string)
	CancelAll()
	MarkSuppressed(keys ...string)
}

// ResumeState is everything handed back to the application layer when it
// resumes: drained actions, the pending hint, and the legacy last action.
type ResumeState struct {
	Actions    []ActionEntry
	Hint       *HintRecord
	LastAction *CallAction
}

// Stats are monotonically increasing counters of push outcomes and action
// intake, read at metrics scrape time.
type Stats struct {
	Delivered   uint64
	EngineAlive uint64
	Expired     uint64
	Suppressed  uint64
	Cancelled   uint64
	Invalid     uint64
	Enqueued    uint64
	Deduped     uint64
	Drains      uint64
}

type stats struct {
	delivered   atomic.Uint64
	engineAlive atomic.Uint64
	expired     atomic.Uint64
	suppressed  atomic.Uint64
	cancelled   atomic.Uint64
	invalid     atomic.Uint64
	enqueued    atomic.Uint64
	deduped     atomic.Uint64
	drains      atomic.Uint64
}

// Engine owns the pending hint store, the pending action queue, the legacy
// last-action slot and the engine-alive flag, and drives the notifier. One
// instance is constructed at process start and shared by all event handlers;
// there is no ambient global state.
type Engine struct {
	hints    *HintStore
	actions  *ActionQueue
	last     *LastActionStore
	alive    storage.KV
	notifier Notifier
	now      func() time.Time
	stats    stats
}

// New creates an engine. plain backs the action queue, the last-action slot
// and the engine-alive flag; secure backs the pending hint.
func New(plain storage.KV, secure storage.KV, notifier Notifier) *Engine {
	return &Engine{
		hints:    NewHintStore(secure),
		actions:  NewActionQueue(plain),
		last:     NewLastActionStore(plain),
		alive:    plain,
		notifier: notifier,
		now:      time.Now,
	}
}

// HandleIncomingCallPush processes an incoming_call push payload. When the
// application engine is not alive, the payload is persisted as the pending
// hint and a notification is presented. Storage and presentation failures are
// logged and do not abort delivery.
func (e *Engine) HandleIncomingCallPush(ctx context.Context, payload CallPayload) PushOutcome {
	if payload.Type() != TypeIncomingCall || !ValidCallID(payload.CallID()) {
		e.stats.invalid.Add(1)
		return OutcomeInvalid
	}

	now := e.now()

	if alive, err := e.EngineAlive(ctx); err != nil {
		slog.Warn("engine-alive check failed, assuming not alive", "error", err)
	} else if alive {
		slog.Debug("incoming push skipped, engine alive", "call_id", payload.CallID())
		e.stats.engineAlive.Add(1)
		return OutcomeEngineAlive
	}

	if payload.Expired(now) {
		slog.Info("incoming push expired", "call_id", payload.CallID(), "ts", payload["ts"], "ttl_s", payload["ttl_s"])
		e.stats.expired.Add(1)
		return OutcomeExpired
	}

	if err := e.hints.Persist(ctx, payload); err != nil {
		slog.Error("failed to persist pending hint", "error", err, "call_id", payload.CallID())
	}

	shown, err := e.notifier.ShowIncoming(
		payload.CallID(), payload.From(), payload.DisplayName(), payload.CallUUID(), true,
	)
	if err != nil {
		slog.Error("failed to present incoming call", "error", err, "call_id", payload.CallID())
	}
	if !shown && err == nil {
		e.stats.suppressed.Add(1)
		return OutcomeSuppressed
	}

	e.stats.delivered.Add(1)
	return OutcomeDelivered
}

// HandleCallCancelledPush processes a call_cancelled push payload: the
// notification is withdrawn and the pending state for the call is cleared.
func (e *Engine) HandleCallCancelledPush(ctx context.Context, payload CallPayload) PushOutcome {
	if payload.Type() != TypeCallCancelled || !ValidCallID(payload.CallID()) {
		e.stats.invalid.Add(1)
		return OutcomeInvalid
	}

	if err := e.last.Clear(ctx); err != nil {
		slog.Error("failed to clear last action on cancel", "error", err)
	}

	e.notifier.Cancel(payload.CallID(), payload.CallUUID())

	if err := e.hints.Clear(ctx); err != nil {
		slog.Error("failed to clear pending hint on cancel", "error", err)
	}

	slog.Info("call cancelled", "call_id", payload.CallID())
	e.stats.cancelled.Add(1)
	return OutcomeCancelled
}

// HandleNotificationAction records a user answer/decline taken from the
// notification: the action is enqueued for the application layer (with
// dedup), mirrored into the legacy last-action slot, the call is suppressed
// against duplicate pushes, and the notification is withdrawn. Returns
// whether the action was accepted (false for an in-window duplicate).
func (e *Engine) HandleNotificationAction(ctx context.Context, action ActionType, callID, callUUID string) (bool, error) {
	if !action.Valid() {
		return false, fmt.Errorf("%w: action %q", ErrInvalidArgument, action)
	}
	if !ValidCallID(callID) {
		return false, fmt.Errorf("%w: call id %q", ErrInvalidArgument, callID)
	}

	tsMs := e.now().UnixMilli()

	accepted, err := e.actions.Enqueue(ctx, callID, action, tsMs)
	if err != nil {
		return false, err
	}
	if accepted {
		e.stats.enqueued.Add(1)
		if err := e.last.Save(ctx, callID, action, tsMs); err != nil {
			slog.Error("failed to save last action", "error", err, "call_id", callID)
		}
	} else {
		e.stats.deduped.Add(1)
	}

	e.notifier.MarkSuppressed(callID, callUUID)
	e.notifier.Cancel(callID, callUUID)

	slog.Info("notification action handled", "action", action, "call_id", callID, "accepted", accepted)
	return accepted, nil
}

// HandleApplicationResume drains the pending action queue, reads and clears
// the pending hint and the legacy last-action slot, and tears down any
// remaining presentations. The drain is destructive; the application layer
// must process the returned actions idempotently.
func (e *Engine) HandleApplicationResume(ctx context.Context) (ResumeState, error) {
	var state ResumeState

	actions, err := e.actions.DrainExpired(ctx, e.now().UnixMilli())
	if err != nil {
		return state, err
	}
	state.Actions = actions
	e.stats.drains.Add(1)

	if hint, ok, err := e.hints.Read(ctx); err != nil {
		slog.Error("failed to read pending hint on resume", "error", err)
	} else if ok {
		state.Hint = &hint
		if err := e.hints.Clear(ctx); err != nil {
			slog.Error("failed to clear pending hint on resume", "error", err)
		}
	}

	if last, ok, err := e.last.Read(ctx); err != nil {
		slog.Error("failed to read last action on resume", "error", err)
	} else if ok {
		state.LastAction = &last
		if err := e.last.Clear(ctx); err != nil {
			slog.Error("failed to clear last action on resume", "error", err)
		}
	}

	e.notifier.CancelAll()

	slog.Info("application resume drained",
		"actions", len(state.Actions), "hint", state.Hint != nil, "last_action", state.LastAction != nil)
	return state, nil
}

// SetEngineAlive persists the engine-alive flag. Marking the engine alive
// also tears down all presentations, since the live engine owns call UI from
// that point.
func (e *Engine) SetEngineAlive(ctx context.Context, alive bool) error {
	value := "false"
	if alive {
		value = "true"
	}
	if err := e.alive.Set(ctx, engineAliveKey, value); err != nil {
		return fmt.Errorf("persisting engine-alive flag: %w", err)
	}
	if alive {
		e.notifier.CancelAll()
	}
	slog.Info("engine-alive flag set", "alive", alive)
	return nil
}

// EngineAlive reports whether the application layer's call engine is running.
func (e *Engine) EngineAlive(ctx context.Context) (bool, error) {
	value, ok, err := e.alive.Get(ctx, engineAliveKey)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

// PendingActionDepth returns the current queue depth for observability.
func (e *Engine) PendingActionDepth(ctx context.Context) (int, error) {
	return e.actions.Depth(ctx)
}

// Stats returns a snapshot of the engine's outcome counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Delivered:   e.stats.delivered.Load(),
		EngineAlive: e.stats.engineAlive.Load(),
		Expired:     e.stats.expired.Load(),
		Suppressed:  e.stats.suppressed.Load(),
		Cancelled:   e.stats.cancelled.Load(),
		Invalid:     e.stats.invalid.Load(),
		Enqueued:    e.stats.enqueued.Load(),
		Deduped:     e.stats.deduped.Load(),
		Drains:      e.stats.drains.Load(),
	}
}

// SetClock overrides the engine's clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.hints.now = now
}
