package bus

// EventKind identifies the category of an event for routing and wait
// correlation.
type EventKind string

const (
	// KindFollowRequested signals that a follow action is about to be
	// triggered for a target user.
	KindFollowRequested EventKind = "follow_requested"

	// KindFollowCompleted signals that a follow network call for a
	// specific user finished, successfully or not.
	KindFollowCompleted EventKind = "follow_completed"

	// KindUnfollowCompleted signals that an unfollow network call for a
	// specific user finished, successfully or not.
	KindUnfollowCompleted EventKind = "unfollow_completed"

	// KindFriendsReceived signals that a fresh friends list was observed
	// on the relationships endpoint.
	KindFriendsReceived EventKind = "friends_received"

	// KindSessionClosed signals that the detection session is shutting
	// down and no further events will be delivered.
	KindSessionClosed EventKind = "session_closed"
)

// Event is the sealed interface for all bus events. The unexported marker
// method restricts implementations to this package so the set of event kinds
// stays closed.
type Event interface {
	// Kind returns the event kind for routing.
	Kind() EventKind

	// eventMarker seals the interface.
	eventMarker()
}

// Event types carried by the bus.
type (
	// FollowRequested is published immediately before the UI follow
	// action fires for a target user.
	FollowRequested struct {
		UserID string
	}

	// FollowCompleted is published by the interceptor once the real
	// follow network call returns.
	FollowCompleted struct {
		UserID  string
		Success bool
	}

	// UnfollowCompleted is published by the interceptor once the real
	// unfollow network call returns.
	UnfollowCompleted struct {
		UserID  string
		Success bool
	}

	// FriendsReceived carries the full replacement friend-ID set from a
	// relationships observation. The session's very first observation is
	// consumed as the initial baseline and never published as this event.
	FriendsReceived struct {
		FriendIDs []string
	}

	// SessionClosed announces that the session is over. A non-empty
	// Reason indicates an abnormal shutdown, such as a fatal
	// configuration error surfaced by the interceptor.
	SessionClosed struct {
		Reason string
	}
)

// Kind implementations.
func (FollowRequested) Kind() EventKind   { return KindFollowRequested }
func (FollowCompleted) Kind() EventKind   { return KindFollowCompleted }
func (UnfollowCompleted) Kind() EventKind { return KindUnfollowCompleted }
func (FriendsReceived) Kind() EventKind   { return KindFriendsReceived }
func (SessionClosed) Kind() EventKind     { return KindSessionClosed }

// Marker implementations.
func (FollowRequested) eventMarker()   {}
func (FollowCompleted) eventMarker()   {}
func (UnfollowCompleted) eventMarker() {}
func (FriendsReceived) eventMarker()   {}
func (SessionClosed) eventMarker()     {}
