package bridge

// PushEventRequest is the JSON body for POST /v1/push: the raw push payload
// as forwarded by the push transport.
type PushEventRequest struct {
	Data map[string]string `json:"data"`
}

// PushEventResponse is the JSON response for POST /v1/push.
type PushEventResponse struct {
	Outcome string `json:"outcome"`
	CallID  string `json:"call_id"`
}

// ActionRequest is the JSON body for POST /v1/action: a user call action
// taken from the notification surface.
type ActionRequest struct {
	Action   string `json:"action"` // "answer" or "decline"
	CallID   string `json:"call_id"`
	CallUUID string `json:"call_uuid,omitempty"`
}

// ActionResponse is the JSON response for POST /v1/action.
type ActionResponse struct {
	Accepted bool `json:"accepted"`
}

// EngineStateRequest is the JSON body for POST /v1/engine.
type EngineStateRequest struct {
	Alive bool `json:"alive"`
}

// EngineStateResponse is the JSON response for POST /v1/engine, echoing the
// persisted flag.
type EngineStateResponse struct {
	Alive bool `json:"alive"`
}

// RouteAckResponse is the JSON response for POST /v1/audio-route.
type RouteAckResponse struct {
	Route string `json:"route"`
}

// PendingActionJSON is one drained queue entry.
type PendingActionJSON struct {
	Action      string `json:"action"`
	CallID      string `json:"call_id"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// HintJSON is the pending incoming-call hint handed back on resume.
type HintJSON struct {
	Timestamp string            `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// LastActionJSON is the legacy single-slot action record.
type LastActionJSON struct {
	Action      string `json:"action"`
	CallID      string `json:"call_id"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// ResumeResponse is the JSON response for POST /v1/resume.
type ResumeResponse struct {
	Actions    []PendingActionJSON `json:"actions"`
	Hint       *HintJSON           `json:"hint,omitempty"`
	LastAction *LastActionJSON     `json:"last_action,omitempty"`
}

// StateResponse is the JSON response for GET /v1/state, a diagnostic
// snapshot of the lifecycle engine.
type StateResponse struct {
	EngineAlive         bool `json:"engine_alive"`
	PendingActions      int  `json:"pending_actions"`
	ActivePresentations int  `json:"active_presentations"`
	ActiveSuppressions  int  `json:"active_suppressions"`
}
