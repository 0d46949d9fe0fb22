// Package bridge carries traffic between the browser side of the session and
// the detection engine. The page script connects over a WebSocket, streams
// every outbound platform call it intercepts as a request message, and
// receives the (possibly rewritten) response to fulfill the page's original
// call. UI actions flow the other way as trigger commands.
package bridge

import "encoding/json"

// Message types exchanged with the page script.
const (
	// TypeRequest is an observed outbound platform call, page to engine.
	TypeRequest = "request"

	// TypeResponse answers a request message, engine to page.
	TypeResponse = "response"

	// TypeTrigger commands a UI action, engine to page.
	TypeTrigger = "trigger"

	// TypeError reports that a request could not be fulfilled.
	TypeError = "error"
)

// Trigger actions.
const (
	ActionFollow   = "follow"
	ActionUnfollow = "unfollow"
)

// Message is the single envelope for all bridge traffic. Only the fields
// relevant to its Type are populated.
type Message struct {
	Type string `json:"type"`

	// ID correlates a response with its request.
	ID string `json:"id,omitempty"`

	// Request fields.
	URL    string          `json:"url,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`

	// Response fields.
	Status int `json:"status,omitempty"`

	// Trigger and error fields.
	Action string `json:"action,omitempty"`
	Error  string `json:"error,omitempty"`
}
