package probe

import (
	"fmt"
	"time"
)

// State names the phases of a single user's probe.
type State string

const (
	// StateIdle is the initial state before any action is armed.
	StateIdle State = "idle"

	// StateArmed means the interceptor holds this user as its target.
	StateArmed State = "armed"

	// StateAwaitingFollow means the UI follow action fired and the probe
	// is waiting on the correlated completion event.
	StateAwaitingFollow State = "awaiting_follow"

	// StateCheckingBack means the follow succeeded and the probe is
	// consulting the friend snapshot.
	StateCheckingBack State = "checking_back"

	// StateAwaitingUnfollow means the UI unfollow action fired and the
	// probe is waiting on the correlated completion event.
	StateAwaitingUnfollow State = "awaiting_unfollow"

	// StateDone is terminal. The next user does not start until the
	// current machine reaches it.
	StateDone State = "done"
)

// ProbeEvent triggers state transitions.
type ProbeEvent interface {
	probeEventMarker()
}

// Event types for the probe FSM.
type (
	// SkipEvent short-circuits a user who must not be probed.
	SkipEvent struct {
		Reason string
	}

	// ArmEvent is sent when the interceptor has been armed for this
	// user.
	ArmEvent struct{}

	// FollowTriggeredEvent is sent once the UI follow action fired.
	FollowTriggeredEvent struct{}

	// FollowResolvedEvent is sent when the follow wait resolved, by
	// event or by timeout.
	FollowResolvedEvent struct {
		Success bool
	}

	// SnapshotCheckedEvent is sent after the friend snapshot was
	// consulted.
	SnapshotCheckedEvent struct {
		FollowsBack bool
	}

	// UnfollowResolvedEvent is sent when the unfollow wait resolved, by
	// event, timeout, or trigger failure.
	UnfollowResolvedEvent struct {
		Success bool
	}

	// FinishEvent forces the machine into Done during cleanup. Sending
	// it to an already-done machine is a no-op.
	FinishEvent struct{}
)

// Event marker implementations.
func (SkipEvent) probeEventMarker()             {}
func (ArmEvent) probeEventMarker()              {}
func (FollowTriggeredEvent) probeEventMarker()  {}
func (FollowResolvedEvent) probeEventMarker()   {}
func (SnapshotCheckedEvent) probeEventMarker()  {}
func (UnfollowResolvedEvent) probeEventMarker() {}
func (FinishEvent) probeEventMarker()           {}

// StateTransition records one transition for debugging and logging.
type StateTransition struct {
	FromState State
	ToState   State
	Event     string
	Timestamp time.Time
}

// ProbeFSM tracks the state of one user's probe. It is driven by exactly one
// goroutine (the coordinator) and exists to make illegal orderings — such as
// consulting the snapshot before the follow resolved — structural errors
// rather than silent bugs.
type ProbeFSM struct {
	// UserID is the user being probed.
	UserID string

	// CurrentState is the machine's current state.
	CurrentState State

	// Transitions is the history for debugging.
	Transitions []StateTransition
}

// NewProbeFSM creates a machine in Idle for the given user.
func NewProbeFSM(userID string) *ProbeFSM {
	return &ProbeFSM{
		UserID:       userID,
		CurrentState: StateIdle,
	}
}

// State returns the current state.
func (fsm *ProbeFSM) State() State {
	return fsm.CurrentState
}

// ProcessEvent handles a probe event and returns the new state.
func (fsm *ProbeFSM) ProcessEvent(event ProbeEvent) (State, error) {
	oldState := fsm.CurrentState
	var newState State
	var eventName string

	switch e := event.(type) {
	case SkipEvent:
		eventName = "skip"
		if fsm.CurrentState != StateIdle {
			return fsm.CurrentState, fmt.Errorf(
				"cannot skip from state %s", fsm.CurrentState,
			)
		}
		newState = StateDone

	case ArmEvent:
		eventName = "arm"
		if fsm.CurrentState != StateIdle {
			return fsm.CurrentState, fmt.Errorf(
				"cannot arm from state %s", fsm.CurrentState,
			)
		}
		newState = StateArmed

	case FollowTriggeredEvent:
		eventName = "follow_triggered"
		if fsm.CurrentState != StateArmed {
			return fsm.CurrentState, fmt.Errorf(
				"cannot trigger follow from state %s",
				fsm.CurrentState,
			)
		}
		newState = StateAwaitingFollow

	case FollowResolvedEvent:
		eventName = "follow_resolved"
		if fsm.CurrentState != StateAwaitingFollow {
			return fsm.CurrentState, fmt.Errorf(
				"cannot resolve follow from state %s",
				fsm.CurrentState,
			)
		}

		// A failed or timed-out follow leaves nothing to revert, so
		// the machine heads straight for cleanup.
		if e.Success {
			newState = StateCheckingBack
		} else {
			newState = StateDone
		}

	case SnapshotCheckedEvent:
		eventName = "snapshot_checked"
		if fsm.CurrentState != StateCheckingBack {
			return fsm.CurrentState, fmt.Errorf(
				"cannot check snapshot from state %s",
				fsm.CurrentState,
			)
		}
		newState = StateAwaitingUnfollow

	case UnfollowResolvedEvent:
		eventName = "unfollow_resolved"
		if fsm.CurrentState != StateAwaitingUnfollow {
			return fsm.CurrentState, fmt.Errorf(
				"cannot resolve unfollow from state %s",
				fsm.CurrentState,
			)
		}
		newState = StateDone

	case FinishEvent:
		eventName = "finish"
		if fsm.CurrentState == StateDone {
			return StateDone, nil
		}
		newState = StateDone

	default:
		return fsm.CurrentState, fmt.Errorf(
			"unknown event type: %T", event,
		)
	}

	fsm.Transitions = append(fsm.Transitions, StateTransition{
		FromState: oldState,
		ToState:   newState,
		Event:     eventName,
		Timestamp: time.Now(),
	})

	fsm.CurrentState = newState

	return newState, nil
}
