// Package ledger persists the durable records produced by a detection
// session: per-user detection results, failed unfollows needing manual
// remediation, the completed-user set, and the initial/current friend
// snapshots. The engine only depends on the Ledger interface; any durable
// key-value or document store satisfies the contract.
package ledger

import (
	"context"
	"time"
)

// SnapshotKind names the two stored friend snapshots.
type SnapshotKind string

const (
	// SnapshotInitial is the baseline captured from the first
	// relationships observation of a session. Users in it are never
	// probed or unfollowed.
	SnapshotInitial SnapshotKind = "initial"

	// SnapshotCurrent is replaced wholesale on every later relationships
	// observation.
	SnapshotCurrent SnapshotKind = "current"
)

// DetectionResult is the per-user probe outcome. It is created once, written
// exactly once, and never mutated afterward. FollowsYouBack is derived from
// snapshot membership and is only meaningful when FollowSuccess is true.
type DetectionResult struct {
	ID              string
	UserID          string
	FollowSuccess   bool
	FollowsYouBack  bool
	UnfollowSuccess bool
	Timestamp       time.Time
}

// FailedUnfollow is the escalation record for a probe whose unfollow could
// not be confirmed. These require manual cleanup because they violate the
// always-reverted invariant.
type FailedUnfollow struct {
	ID        string
	UserID    string
	Reason    string
	Timestamp time.Time
}

// Ledger is the persistence contract consumed by the detection engine.
type Ledger interface {
	// AppendDetectionResult records a finished probe. Called exactly once
	// per probed user.
	AppendDetectionResult(ctx context.Context, res DetectionResult) error

	// AppendFailedUnfollow records an escalated unfollow failure.
	AppendFailedUnfollow(ctx context.Context, rec FailedUnfollow) error

	// IsCompleted reports whether the user was fully probed in this or a
	// prior session.
	IsCompleted(ctx context.Context, userID string) (bool, error)

	// MarkCompleted adds the user to the completed set. Idempotent.
	MarkCompleted(ctx context.Context, userID string) error

	// InitialFriends returns the session baseline snapshot, or an empty
	// slice if none has been captured.
	InitialFriends(ctx context.Context) ([]string, error)

	// SetInitialFriends stores the session baseline snapshot.
	SetInitialFriends(ctx context.Context, ids []string) error

	// CurrentFriends returns the most recent friend snapshot, or an
	// empty slice if none has been observed.
	CurrentFriends(ctx context.Context) ([]string, error)

	// SetCurrentFriends replaces the current friend snapshot wholesale.
	SetCurrentFriends(ctx context.Context, ids []string) error

	// DetectionResults returns all recorded results, newest first.
	DetectionResults(ctx context.Context) ([]DetectionResult, error)

	// FailedUnfollows returns all escalation records, newest first.
	FailedUnfollows(ctx context.Context) ([]FailedUnfollow, error)
}
