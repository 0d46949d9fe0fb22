package intercept

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// defaultForwardTimeout bounds a single replayed platform call.
const defaultForwardTimeout = 15 * time.Second

// RestyForwarder replays rewritten calls against the live platform with a
// shared resty client. Authentication rides along inside the opaque payload
// fields, so no extra headers are attached here beyond the cookie jar the
// bridge shares via the configured header set.
type RestyForwarder struct {
	client *resty.Client
}

// NewRestyForwarder creates a forwarder. Headers are applied to every
// forwarded call; the bridge uses this to propagate the browser session's
// user agent and cookies.
func NewRestyForwarder(timeout time.Duration,
	headers map[string]string) *RestyForwarder {

	if timeout <= 0 {
		timeout = defaultForwardTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json")

	return &RestyForwarder{client: client}
}

// Forward executes the call and returns the raw status and body. A non-2xx
// status is not an error at this layer; classification happens in the
// interceptor.
func (f *RestyForwarder) Forward(ctx context.Context,
	req Request) (Response, error) {

	r := f.client.R().SetContext(ctx)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	res, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return Response{}, fmt.Errorf("execute %s %s: %w",
			req.Method, req.URL, err)
	}

	return Response{
		Status: res.StatusCode(),
		Body:   res.Body(),
	}, nil
}

// Ensure RestyForwarder satisfies the interface.
var _ Forwarder = (*RestyForwarder)(nil)
