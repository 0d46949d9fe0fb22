// Package payload holds the single captured authentic request body and
// derives per-target bodies from it by recipient substitution. The token and
// signature fields of the captured body are opaque blobs copied verbatim;
// only the recipient field is ever rewritten.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTemplateMissing is returned when a render is attempted before
	// any authentic body has been captured. This is a fatal configuration
	// error for the session, never a retryable condition.
	ErrTemplateMissing = errors.New("no payload template captured")

	// ErrInvalidBody is returned when a capture candidate cannot be
	// parsed as a JSON object.
	ErrInvalidBody = errors.New("payload body is not a JSON object")
)

// Store holds at most one captured template per session. Capture is
// first-writer-wins; the structure of the platform's follow body is assumed
// stable within a session, so later captures are ignored.
type Store struct {
	mu sync.Mutex

	// recipientField is the name of the body field holding the target
	// user ID.
	recipientField string

	// template is the captured body, keyed by field name with raw JSON
	// values. Nil until the first successful capture.
	template map[string]json.RawMessage
}

// NewStore creates an empty template store that substitutes the given
// recipient field on render.
func NewStore(recipientField string) *Store {
	return &Store{
		recipientField: recipientField,
	}
}

// Capture stores the first observed authentic follow/unfollow body. Once a
// template exists, further captures are silently ignored.
func (s *Store) Capture(rawBody []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.template != nil {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if fields == nil {
		return ErrInvalidBody
	}

	s.template = fields

	return nil
}

// Captured reports whether a template has been stored.
func (s *Store) Captured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.template != nil
}

// Render returns a copy of the template body with the recipient field
// replaced by the given user ID. The template itself is never mutated.
func (s *Store) Render(userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.template == nil {
		return nil, ErrTemplateMissing
	}

	recipient, err := json.Marshal(userID)
	if err != nil {
		return nil, fmt.Errorf("encode recipient: %w", err)
	}

	rendered := make(map[string]json.RawMessage, len(s.template)+1)
	for field, value := range s.template {
		rendered[field] = value
	}
	rendered[s.recipientField] = recipient

	body, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("encode rendered body: %w", err)
	}

	return body, nil
}
