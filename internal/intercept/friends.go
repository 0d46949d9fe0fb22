package intercept

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoFriendList is returned when a relationships response body carries no
// recognizable friend-ID list.
var ErrNoFriendList = errors.New("no friend list in response body")

// friendEntry is one element of the object-shaped relationships response.
type friendEntry struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (e friendEntry) identifier() string {
	switch {
	case e.ID != "":
		return e.ID
	case e.UserID != "":
		return e.UserID
	default:
		return e.Username
	}
}

// ParseFriendIDs extracts the mutual-friend ID list from a relationships
// response. The platform has shipped the list both as a bare string array
// and as an object wrapping entry records, so both shapes are accepted.
func ParseFriendIDs(body []byte) ([]string, error) {
	// Bare array of IDs.
	var plain []string
	if err := json.Unmarshal(body, &plain); err == nil {
		return plain, nil
	}

	// Object with a "friends" or "users" list.
	var wrapped struct {
		Friends []json.RawMessage `json:"friends"`
		Users   []json.RawMessage `json:"users"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFriendList, err)
	}

	entries := wrapped.Friends
	if entries == nil {
		entries = wrapped.Users
	}
	if entries == nil {
		return nil, ErrNoFriendList
	}

	ids := make([]string, 0, len(entries))
	for _, raw := range entries {
		// Entries are either bare ID strings or records carrying an
		// identifier field.
		var id string
		if err := json.Unmarshal(raw, &id); err == nil {
			ids = append(ids, id)
			continue
		}

		var entry friendEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoFriendList, err)
		}
		if entry.identifier() == "" {
			return nil, ErrNoFriendList
		}

		ids = append(ids, entry.identifier())
	}

	return ids, nil
}
