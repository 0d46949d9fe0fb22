package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTriggerTimeout = 10 * time.Second

// HTTPTrigger drives UI actions through a browser-automation sidecar (such
// as a DevTools driver) that exposes them as REST endpoints. It is the
// alternative to triggering over the WebSocket session for setups where the
// page script cannot click controls itself.
type HTTPTrigger struct {
	client *resty.Client
}

// NewHTTPTrigger creates a trigger posting to the sidecar at baseURL.
func NewHTTPTrigger(baseURL string) *HTTPTrigger {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTriggerTimeout).
		SetHeader("Content-Type", "application/json")

	return &HTTPTrigger{client: client}
}

// TriggerFollow posts the follow action to the sidecar.
func (t *HTTPTrigger) TriggerFollow(ctx context.Context) error {
	return t.post(ctx, ActionFollow)
}

// TriggerUnfollow posts the unfollow action to the sidecar.
func (t *HTTPTrigger) TriggerUnfollow(ctx context.Context) error {
	return t.post(ctx, ActionUnfollow)
}

func (t *HTTPTrigger) post(ctx context.Context, action string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"action": action}).
		Post("/actions/" + action)
	if err != nil {
		return fmt.Errorf("post %s trigger: %w", action, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s trigger rejected: %s", action,
			resp.Status())
	}

	return nil
}
