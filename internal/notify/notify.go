// Package notify decides, for each inbound call event, whether and how an
// incoming-call presentation is rendered. The OS notification surface itself
// is behind the Presenter interface; this package owns the per-call state
// machine, capability selection and fallback behaviour.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Capability is the presentation variant the OS layer supports, probed once
// per call path rather than branched on version numbers in business logic.
type Capability int

// Presentation capabilities.
const (
	// CapabilityPlain is a generic alert with explicit answer/decline
	// action buttons.
	CapabilityPlain Capability = iota
	// CapabilityRich is an OS-native call-style template purpose-built for
	// phone-call UX.
	CapabilityRich
)

// String returns the capability name for logging.
func (c Capability) String() string {
	if c == CapabilityRich {
		return "rich"
	}
	return "plain"
}

// ErrPermissionDenied is returned by a Presenter when the OS has not granted
// notification (or microphone, for presence) permission. It is terminal for
// the attempt: no retry, the persisted hint covers recovery.
var ErrPermissionDenied = errors.New("permission denied")

// Action is one tappable button on a plain presentation.
type Action struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Presentation is the content contract handed to the OS notification layer.
type Presentation struct {
	CallID      string     `json:"call_id"`
	CallUUID    string     `json:"call_uuid"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Style       Capability `json:"style"`
	Ringing     bool       `json:"ringing"`
	Refresh     bool       `json:"refresh"` // re-render without re-alerting
	Actions     []Action   `json:"actions,omitempty"`
	From        string     `json:"from"`
	DisplayName string     `json:"display_name,omitempty"`
}

// Presenter posts, updates and cancels presentations on the OS notification
// surface.
type Presenter interface {
	// Capability probes which presentation variant the surface supports.
	Capability() Capability
	Post(p Presentation) error
	Update(p Presentation) error
	Cancel(callID string) error
	CancelAll() error
}

// ForegroundPresence requests and relinquishes elevated execution privilege
// while a call is being presented, declaring whether microphone capability is
// needed.
type ForegroundPresence interface {
	Acquire(callID string, withMicrophone bool) error
	Release(callID string) error
}

// Controller is the notification lifecycle state machine, keyed by call ID
// with the call UUID tracked as an alias. One instance lives for the process
// and is shared by all event handlers.
type Controller struct {
	presenter   Presenter
	presence    ForegroundPresence // may be nil
	suppression *SuppressionTracker

	mu      sync.Mutex
	showing map[string]string // callID -> callUUID
	aliases map[string]string // callUUID -> callID
}

// NewController creates a controller. presence may be nil when the host has
// no foreground-presence concept.
func NewController(presenter Presenter, presence ForegroundPresence, suppression *SuppressionTracker) *Controller {
	return &Controller{
		presenter:   presenter,
		presence:    presence,
		suppression: suppression,
		showing:     make(map[string]string),
		aliases:     make(map[string]string),
	}
}

// ShowIncoming presents an incoming call. Suppressed calls are skipped with
// shown=false and no error. A rich presentation that fails to post falls back
// to the plain variant before giving up; a terminal failure is returned but
// callers treat it as non-fatal since the persisted hint still covers
// recovery.
func (c *Controller) ShowIncoming(callID, from, displayName, callUUID string, ringing bool) (bool, error) {
	if callUUID == "" {
		callUUID = callID
	}

	if c.suppression.IsSuppressed(callID, callUUID) {
		slog.Debug("incoming presentation suppressed", "call_id", callID, "call_uuid", callUUID)
		return false, nil
	}

	c.acquirePresence(callID)

	p := c.buildPresentation(callID, from, displayName, callUUID, ringing, false)
	if err := c.presenter.Post(p); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			slog.Warn("notification permission denied, call alert dropped", "call_id", callID)
			c.releasePresence(callID)
			return false, err
		}
		if p.Style == CapabilityRich {
			slog.Warn("rich presentation failed, falling back to plain", "error", err, "call_id", callID)
			p = plainVariant(p)
			if err := c.presenter.Post(p); err != nil {
				c.releasePresence(callID)
				return false, fmt.Errorf("posting fallback presentation: %w", err)
			}
		} else {
			c.releasePresence(callID)
			return false, fmt.Errorf("posting presentation: %w", err)
		}
	}

	c.mu.Lock()
	c.showing[callID] = callUUID
	c.aliases[callUUID] = callID
	c.mu.Unlock()

	slog.Info("incoming call presented", "call_id", callID, "call_uuid", callUUID, "style", p.Style.String(), "ringing", ringing)
	return true, nil
}

// UpdateIncomingState re-renders the presentation for a showing call without
// re-triggering alert behaviour. Unknown calls are a no-op.
func (c *Controller) UpdateIncomingState(callID, from, displayName, callUUID string, ringing bool) error {
	if callUUID == "" {
		callUUID = callID
	}

	c.mu.Lock()
	_, ok := c.showing[callID]
	c.mu.Unlock()
	if !ok {
		slog.Debug("update for call not showing", "call_id", callID)
		return nil
	}

	p := c.buildPresentation(callID, from, displayName, callUUID, ringing, true)
	if err := c.presenter.Update(p); err != nil {
		return fmt.Errorf("updating presentation: %w", err)
	}
	return nil
}

// Cancel withdraws the presentation for a call under either identifier form.
// Idempotent if nothing is showing.
func (c *Controller) Cancel(callID, callUUID string) {
	c.mu.Lock()
	if callID == "" {
		callID = c.aliases[callUUID]
	}
	uuid, ok := c.showing[callID]
	delete(c.showing, callID)
	delete(c.aliases, uuid)
	if callUUID != "" {
		delete(c.aliases, callUUID)
	}
	c.mu.Unlock()

	if callID != "" {
		if err := c.presenter.Cancel(callID); err != nil {
			slog.Warn("failed to cancel presentation", "error", err, "call_id", callID)
		}
		c.releasePresence(callID)
	}
	if ok {
		slog.Debug("presentation cancelled", "call_id", callID)
	}
}

// CancelAll withdraws every presentation. Used on gross teardown, e.g. when
// the application engine takes over call UI.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	cleared := len(c.showing)
	ids := make([]string, 0, cleared)
	for callID := range c.showing {
		ids = append(ids, callID)
	}
	c.showing = make(map[string]string)
	c.aliases = make(map[string]string)
	c.mu.Unlock()

	if err := c.presenter.CancelAll(); err != nil {
		slog.Warn("failed to cancel all presentations", "error", err)
	}
	for _, callID := range ids {
		c.releasePresence(callID)
	}
	if cleared > 0 {
		slog.Debug("all presentations cancelled", "count", cleared)
	}
}

// MarkSuppressed suppresses the given identifiers against re-alerting.
func (c *Controller) MarkSuppressed(keys ...string) {
	c.suppression.Mark(keys...)
}

// ActivePresentationCount returns how many calls are currently showing.
// Observability only.
func (c *Controller) ActivePresentationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.showing)
}

// buildPresentation assembles the content contract for one call, selecting
// the variant from the presenter's capability probe.
func (c *Controller) buildPresentation(callID, from, displayName, callUUID string, ringing, refresh bool) Presentation {
	title := displayName
	if title == "" {
		title = "Incoming call"
	}

	p := Presentation{
		CallID:      callID,
		CallUUID:    callUUID,
		Title:       title,
		Body:        "From " + from,
		Style:       c.presenter.Capability(),
		Ringing:     ringing,
		Refresh:     refresh,
		From:        from,
		DisplayName: displayName,
	}
	if p.Style == CapabilityPlain {
		p.Actions = plainActions()
	}
	return p
}

// plainVariant downgrades a presentation to the plain actionable form.
func plainVariant(p Presentation) Presentation {
	p.Style = CapabilityPlain
	p.Actions = plainActions()
	return p
}

func plainActions() []Action {
	return []Action{
		{Label: "Answer", Action: "answer"},
		{Label: "Decline", Action: "decline"},
	}
}

// acquirePresence requests foreground presence with microphone capability,
// degrading to no-microphone when permission is denied.
func (c *Controller) acquirePresence(callID string) {
	if c.presence == nil {
		return
	}
	err := c.presence.Acquire(callID, true)
	if err == nil {
		return
	}
	if errors.Is(err, ErrPermissionDenied) {
		slog.Warn("microphone presence denied, acquiring without microphone", "call_id", callID)
		if err := c.presence.Acquire(callID, false); err != nil {
			slog.Warn("foreground presence unavailable", "error", err, "call_id", callID)
		}
		return
	}
	slog.Warn("failed to acquire foreground presence", "error", err, "call_id", callID)
}

func (c *Controller) releasePresence(callID string) {
	if c.presence == nil {
		return
	}
	if err := c.presence.Release(callID); err != nil {
		slog.Warn("failed to release foreground presence", "error", err, "call_id", callID)
	}
}
