package notify

import "log/slog"

// LogPresenter writes presentations to the structured log instead of an OS
// surface. Used when no presenter URL is configured, typically in development.
type LogPresenter struct{}

// Capability reports plain: there is no call-style surface behind a log line.
func (LogPresenter) Capability() Capability { return CapabilityPlain }

// Post logs the presentation.
func (LogPresenter) Post(p Presentation) error {
	slog.Info("presentation posted", "call_id", p.CallID, "title", p.Title, "body", p.Body, "ringing", p.Ringing)
	return nil
}

// Update logs the refresh.
func (LogPresenter) Update(p Presentation) error {
	slog.Info("presentation updated", "call_id", p.CallID, "ringing", p.Ringing)
	return nil
}

// Cancel logs the withdrawal.
func (LogPresenter) Cancel(callID string) error {
	slog.Info("presentation cancelled", "call_id", callID)
	return nil
}

// CancelAll logs the teardown.
func (LogPresenter) CancelAll() error {
	slog.Info("all presentations cancelled")
	return nil
}
