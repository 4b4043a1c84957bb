package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookPresenter delivers presentations to an external notification surface
// over HTTP. The receiving host (the mobile shell or a development harness)
// renders them with the OS notification APIs.
type WebhookPresenter struct {
	httpClient *http.Client
	baseURL    string
	capability Capability
}

// NewWebhookPresenter creates a presenter posting to baseURL. capability is
// the variant the remote surface declared at registration time.
func NewWebhookPresenter(baseURL string, capability Capability) *WebhookPresenter {
	return &WebhookPresenter{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		capability: capability,
	}
}

// Capability returns the remote surface's declared presentation capability.
func (w *WebhookPresenter) Capability() Capability {
	return w.capability
}

// Post delivers a new presentation.
func (w *WebhookPresenter) Post(p Presentation) error {
	return w.send(http.MethodPost, "/notifications", p)
}

// Update re-delivers a presentation marked as a refresh.
func (w *WebhookPresenter) Update(p Presentation) error {
	return w.send(http.MethodPut, "/notifications/"+p.CallID, p)
}

// Cancel withdraws the presentation for a call.
func (w *WebhookPresenter) Cancel(callID string) error {
	return w.send(http.MethodDelete, "/notifications/"+callID, nil)
}

// CancelAll withdraws every presentation.
func (w *WebhookPresenter) CancelAll() error {
	return w.send(http.MethodDelete, "/notifications", nil)
}

func (w *WebhookPresenter) send(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("presenter: marshalling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("presenter: creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("presenter: sending request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusCreated:
		return nil
	case http.StatusForbidden:
		return fmt.Errorf("presenter: surface refused: %w", ErrPermissionDenied)
	default:
		return fmt.Errorf("presenter: unexpected status %d", resp.StatusCode)
	}
}
