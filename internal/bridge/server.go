// Package bridge exposes the incoming-call lifecycle engine over HTTP: one
// dispatch point per external trigger (push delivered, notification action,
// application resume, engine-alive changes).
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sipmvp/callbridge/internal/audioroute"
	"github.com/sipmvp/callbridge/internal/engine"
)

// Lifecycle is the engine contract the bridge dispatches into.
type Lifecycle interface {
	HandleIncomingCallPush(ctx context.Context, payload engine.CallPayload) engine.PushOutcome
	HandleCallCancelledPush(ctx context.Context, payload engine.CallPayload) engine.PushOutcome
	HandleNotificationAction(ctx context.Context, action engine.ActionType, callID, callUUID string) (bool, error)
	HandleApplicationResume(ctx context.Context) (engine.ResumeState, error)
	SetEngineAlive(ctx context.Context, alive bool) error
	EngineAlive(ctx context.Context) (bool, error)
	PendingActionDepth(ctx context.Context) (int, error)
}

// PresentationCounter reports how many call presentations are showing.
type PresentationCounter interface {
	ActivePresentationCount() int
}

// SuppressionCounter reports how many suppressions are active.
type SuppressionCounter interface {
	ActiveCount() int
}

// RouteReporter accepts audio route snapshots reported by the device shell.
type RouteReporter interface {
	Report(route audioroute.RouteInfo)
}

// Server holds the bridge HTTP handler dependencies.
type Server struct {
	router        *chi.Mux
	lifecycle     Lifecycle
	presentations PresentationCounter
	suppressions  SuppressionCounter
	routes        RouteReporter
	rateLimiter   *RateLimiter
	jwtSecret     []byte
}

// NewServer creates a bridge HTTP server with all routes mounted. If
// jwtSecret is non-empty, all /v1 routes require a bearer token. If
// rateLimiter is non-nil, rate limiting is applied to the push endpoint.
// presentations and suppressions may be nil; the state endpoint then reports
// zeroes for them. If routes is nil the audio-route endpoint is not mounted.
func NewServer(lifecycle Lifecycle, presentations PresentationCounter, suppressions SuppressionCounter, routes RouteReporter, rateLimiter *RateLimiter, jwtSecret []byte) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		lifecycle:     lifecycle,
		presentations: presentations,
		suppressions:  suppressions,
		routes:        routes,
		rateLimiter:   rateLimiter,
		jwtSecret:     jwtSecret,
	}

	s.mountRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying chi.Mux so the caller can add middleware.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// mountRoutes mounts all bridge API routes under /v1.
func (s *Server) mountRoutes() {
	r := s.router

	r.Route("/v1", func(r chi.Router) {
		if len(s.jwtSecret) > 0 {
			r.Use(RequireDeviceAuth(s.jwtSecret))
		}
		if s.rateLimiter != nil {
			r.With(s.rateLimiter.Middleware).Post("/push", s.handlePush)
		} else {
			r.Post("/push", s.handlePush)
		}
		r.Post("/action", s.handleAction)
		r.Post("/resume", s.handleResume)
		r.Post("/engine", s.handleEngine)
		if s.routes != nil {
			r.Post("/audio-route", s.handleAudioRoute)
		}
		r.Get("/state", s.handleState)
	})
}

// handlePush handles POST /v1/push — dispatch a raw push payload by type.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req PushEventRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	payload := engine.CallPayload(req.Data)

	var outcome engine.PushOutcome
	switch payload.Type() {
	case engine.TypeIncomingCall:
		outcome = s.lifecycle.HandleIncomingCallPush(r.Context(), payload)
	case engine.TypeCallCancelled:
		outcome = s.lifecycle.HandleCallCancelledPush(r.Context(), payload)
	default:
		writeError(w, http.StatusBadRequest, "unknown push type")
		return
	}

	if outcome == engine.OutcomeInvalid {
		writeError(w, http.StatusBadRequest, "invalid push payload")
		return
	}

	writeJSON(w, http.StatusOK, PushEventResponse{
		Outcome: string(outcome),
		CallID:  payload.CallID(),
	})
}

// handleAction handles POST /v1/action — record an answer/decline taken on
// the notification surface.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	accepted, err := s.lifecycle.HandleNotificationAction(
		r.Context(), engine.ActionType(req.Action), req.CallID, req.CallUUID,
	)
	if errors.Is(err, engine.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("action: lifecycle error", "error", err, "call_id", req.CallID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, ActionResponse{Accepted: accepted})
}

// handleResume handles POST /v1/resume — the application layer drains
// pending actions and collects the pending hint.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	state, err := s.lifecycle.HandleApplicationResume(r.Context())
	if err != nil {
		slog.Error("resume: lifecycle error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := ResumeResponse{Actions: make([]PendingActionJSON, 0, len(state.Actions))}
	for _, a := range state.Actions {
		resp.Actions = append(resp.Actions, PendingActionJSON{
			Action:      string(a.Action),
			CallID:      a.CallID,
			TimestampMs: a.TimestampMs,
		})
	}
	if state.Hint != nil {
		resp.Hint = &HintJSON{Timestamp: state.Hint.Timestamp, Payload: state.Hint.Payload}
	}
	if state.LastAction != nil {
		resp.LastAction = &LastActionJSON{
			Action:      string(state.LastAction.Action),
			CallID:      state.LastAction.CallID,
			TimestampMs: state.LastAction.TimestampMs,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleEngine handles POST /v1/engine — the application layer flags its
// call engine alive or stopped.
func (s *Server) handleEngine(w http.ResponseWriter, r *http.Request) {
	var req EngineStateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if err := s.lifecycle.SetEngineAlive(r.Context(), req.Alive); err != nil {
		slog.Error("engine: failed to set alive flag", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, EngineStateResponse{Alive: req.Alive})
}

// handleAudioRoute handles POST /v1/audio-route — a route snapshot from the
// device shell, debounced by the intake before it is acted on.
func (s *Server) handleAudioRoute(w http.ResponseWriter, r *http.Request) {
	var req audioroute.RouteInfo
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Route == "" {
		writeError(w, http.StatusBadRequest, "route is required")
		return
	}

	s.routes.Report(req)
	writeJSON(w, http.StatusAccepted, RouteAckResponse{Route: req.Route})
}

// handleState handles GET /v1/state — a diagnostic snapshot.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var resp StateResponse

	alive, err := s.lifecycle.EngineAlive(r.Context())
	if err != nil {
		slog.Error("state: failed to read engine-alive flag", "error", err)
	}
	resp.EngineAlive = alive

	depth, err := s.lifecycle.PendingActionDepth(r.Context())
	if err != nil {
		slog.Error("state: failed to read queue depth", "error", err)
	}
	resp.PendingActions = depth

	if s.presentations != nil {
		resp.ActivePresentations = s.presentations.ActivePresentationCount()
	}
	if s.suppressions != nil {
		resp.ActiveSuppressions = s.suppressions.ActiveCount()
	}

	writeJSON(w, http.StatusOK, resp)
}

// envelope is the standard response wrapper for the bridge API.
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// maxRequestBodySize is the upper limit for JSON request bodies (64 KB).
const maxRequestBodySize = 64 << 10

// readJSON decodes a JSON request body into dst with size limiting.
// Returns a user-friendly error string on failure, or "" on success.
func readJSON(r *http.Request, dst any) string {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return "invalid request body"
	}

	if dec.More() {
		return "request body must contain a single json object"
	}

	return ""
}
