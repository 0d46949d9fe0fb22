// Package probe drives the per-user detection state machine: arm the
// interceptor, trigger the UI follow, await the correlated completion,
// consult the friend snapshot, trigger the unfollow, and record the outcome.
// Users are processed strictly sequentially; concurrent probing would make
// the single armed-target/interceptor pairing ambiguous.
package probe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/google/uuid"

	"github.com/immdipu/follower-detector/internal/bus"
	"github.com/immdipu/follower-detector/internal/intercept"
	"github.com/immdipu/follower-detector/internal/ledger"
	"github.com/immdipu/follower-detector/internal/metrics"
)

// Reference timings. All are overridable via Config.
const (
	// DefaultFollowTimeout bounds the wait for a follow or unfollow
	// completion event.
	DefaultFollowTimeout = 10 * time.Second

	// DefaultFriendsTimeout bounds the secondary wait for a friends-list
	// refresh after a successful follow. On expiry the probe proceeds
	// with the stale snapshot rather than hanging the pipeline.
	DefaultFriendsTimeout = 8 * time.Second

	// DefaultInterUserDelay is the pause between users, respecting the
	// platform's implicit rate limits.
	DefaultInterUserDelay = 3 * time.Second
)

// ErrSessionClosed is returned by Run when the session was torn down by a
// fatal interceptor error before the batch finished.
var ErrSessionClosed = errors.New("detection session closed")

// ActionTrigger abstracts whatever external mechanism causes the platform to
// issue the underlying follow/unfollow network call. The engine does not
// know or care how.
type ActionTrigger interface {
	// TriggerFollow performs the UI action that emits a follow call.
	TriggerFollow(ctx context.Context) error

	// TriggerUnfollow performs the UI action that emits an unfollow
	// call.
	TriggerUnfollow(ctx context.Context) error
}

// Config bundles the coordinator's collaborators and timings.
type Config struct {
	Bus         *bus.Bus
	Interceptor *intercept.Interceptor
	Ledger      ledger.Ledger
	Trigger     ActionTrigger
	Logger      btclog.Logger

	FollowTimeout  time.Duration
	FriendsTimeout time.Duration
	InterUserDelay time.Duration
}

// Summary is the end-of-run signal: how the batch went, per outcome.
type Summary struct {
	Probed      int
	FollowBacks int
	Failures    int
	Escalations int
	Skipped     int
}

// Coordinator runs one probe at a time over a sequential queue of user IDs.
type Coordinator struct {
	cfg Config

	// stopRequested is honored only between users; an in-flight probe
	// always runs to Done, including its own unfollow attempt.
	stopRequested atomic.Bool

	// escalations counts failed unfollows raised during the current Run.
	// Only touched from Run's goroutine.
	escalations int
}

// New creates a coordinator, applying default timings where unset.
func New(cfg Config) *Coordinator {
	if cfg.FollowTimeout <= 0 {
		cfg.FollowTimeout = DefaultFollowTimeout
	}
	if cfg.FriendsTimeout <= 0 {
		cfg.FriendsTimeout = DefaultFriendsTimeout
	}
	if cfg.InterUserDelay < 0 {
		cfg.InterUserDelay = DefaultInterUserDelay
	}

	return &Coordinator{cfg: cfg}
}

// Stop requests a halt. The current probe finishes first; no new user
// starts afterward.
func (c *Coordinator) Stop() {
	c.stopRequested.Store(true)
}

// Run probes the given users in order and returns the batch summary. The
// batch never aborts because one user's probe failed; only a stop request, a
// cancelled context (checked between users), or a fatal infrastructure error
// halts it early.
func (c *Coordinator) Run(ctx context.Context,
	userIDs []string) (Summary, error) {

	// A fatal interceptor error (such as a missing payload template)
	// surfaces as a session-closed event; honor it like a stop request.
	subID := c.cfg.Bus.Subscribe(func(event bus.Event) {
		if _, ok := event.(bus.SessionClosed); ok {
			c.stopRequested.Store(true)
		}
	})
	defer c.cfg.Bus.Unsubscribe(subID)

	c.escalations = 0

	var summary Summary
	for i, userID := range userIDs {
		if c.stopRequested.Load() || ctx.Err() != nil {
			c.cfg.Logger.InfoS(ctx, "Stopping before next user",
				"remaining", len(userIDs)-i)
			break
		}

		outcome, err := c.probeUser(ctx, userID)
		if err != nil {
			return summary, fmt.Errorf("probe %q: %w", userID, err)
		}

		switch outcome {
		case metrics.OutcomeSkipped:
			summary.Skipped++

			// Skips perform no network activity, so the
			// rate-limit delay is unnecessary.
			continue

		case metrics.OutcomeFollowBack:
			summary.Probed++
			summary.FollowBacks++

		case metrics.OutcomeNoFollowBack:
			summary.Probed++

		case metrics.OutcomeFollowFailed:
			summary.Probed++
			summary.Failures++
		}

		if i < len(userIDs)-1 {
			select {
			case <-time.After(c.cfg.InterUserDelay):
			case <-ctx.Done():
			}
		}
	}

	summary.Escalations = c.escalations

	if err := c.cfg.Interceptor.Err(); err != nil {
		return summary, fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}

	c.cfg.Logger.InfoS(ctx, "Batch finished",
		"probed", summary.Probed,
		"follow_backs", summary.FollowBacks,
		"failures", summary.Failures,
		"escalations", summary.Escalations,
		"skipped", summary.Skipped)

	return summary, nil
}

// probeUser runs the full state machine for one user. Per-user errors are
// folded into the recorded DetectionResult; only infrastructure failures
// (ledger unavailability) are returned.
func (c *Coordinator) probeUser(parent context.Context,
	userID string) (outcome string, retErr error) {

	// The probe must run to Done even if the caller's context is
	// cancelled mid-flight, or a successful follow could be left
	// unreverted. Every wait still carries its own hard deadline.
	ctx := context.WithoutCancel(parent)

	fsm := NewProbeFSM(userID)

	// Idempotent skip: never probe an already-completed user or a real,
	// pre-existing friend from the session baseline.
	completed, err := c.cfg.Ledger.IsCompleted(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("consult completed set: %w", err)
	}
	initial, err := c.cfg.Ledger.InitialFriends(ctx)
	if err != nil {
		return "", fmt.Errorf("load initial snapshot: %w", err)
	}
	if completed || slices.Contains(initial, userID) {
		if _, err := fsm.ProcessEvent(SkipEvent{}); err != nil {
			return "", err
		}

		c.cfg.Logger.DebugS(ctx, "Skipping user",
			"user_id", userID, "completed", completed)
		metrics.RecordSkip()

		return metrics.OutcomeSkipped, nil
	}

	result := ledger.DetectionResult{
		ID:     uuid.New().String(),
		UserID: userID,
	}
	outcome = metrics.OutcomeFollowFailed
	finish := metrics.ProbeStarted()

	// Fail-safe cleanup: runs even when a step errored. The target is
	// always disarmed so a failure never leaves it armed for the next
	// user, and the result is written exactly once.
	defer func() {
		c.cfg.Interceptor.Disarm()

		if _, err := fsm.ProcessEvent(FinishEvent{}); err != nil {
			c.cfg.Logger.WarnS(ctx, "Probe cleanup", err)
		}

		result.Timestamp = time.Now().UTC()
		if err := c.cfg.Ledger.AppendDetectionResult(ctx, result); err != nil {
			if retErr == nil {
				retErr = fmt.Errorf("record result: %w", err)
			}
		}
		if err := c.cfg.Ledger.MarkCompleted(ctx, userID); err != nil {
			if retErr == nil {
				retErr = fmt.Errorf("mark completed: %w", err)
			}
		}

		finish(outcome)

		c.cfg.Logger.InfoS(ctx, "Probe finished",
			"user_id", userID,
			"follow_success", result.FollowSuccess,
			"follows_back", result.FollowsYouBack,
			"unfollow_success", result.UnfollowSuccess)
	}()

	// Arm, then register waits BEFORE the trigger fires; registering
	// after risks losing an event that resolves faster than the
	// registration. The friends wait is registered alongside because a
	// successful follow is expected to trigger a relationships refresh.
	c.cfg.Interceptor.Arm(intercept.ArmedTarget{
		UserID: userID,
		Action: intercept.ActionFollow,
	})
	if _, err := fsm.ProcessEvent(ArmEvent{}); err != nil {
		return outcome, err
	}

	followWait := bus.AwaitFollowCompleted(
		c.cfg.Bus, userID, c.cfg.FollowTimeout,
	)
	friendsWait := bus.AwaitFriendsReceived(
		c.cfg.Bus, c.cfg.FollowTimeout+c.cfg.FriendsTimeout,
	)

	c.cfg.Bus.Publish(bus.FollowRequested{UserID: userID})

	if err := c.cfg.Trigger.TriggerFollow(ctx); err != nil {
		// The control was unreachable; nothing was followed, so there
		// is nothing to undo.
		c.cfg.Logger.WarnS(ctx, "Follow trigger failed", err,
			"user_id", userID)

		result.FollowSuccess = false
		result.UnfollowSuccess = true

		return outcome, retErr
	}
	if _, err := fsm.ProcessEvent(FollowTriggeredEvent{}); err != nil {
		return outcome, err
	}

	// Absence of confirmation means the probe did not definitively
	// succeed: a timeout is a failure, never an assumed success.
	followSuccess, waitErr := followWait.Await(ctx).Unpack()
	result.FollowSuccess = waitErr == nil && followSuccess

	if _, err := fsm.ProcessEvent(FollowResolvedEvent{
		Success: result.FollowSuccess,
	}); err != nil {
		return outcome, err
	}

	if !result.FollowSuccess {
		// Nothing to undo.
		result.UnfollowSuccess = true

		return outcome, retErr
	}

	// A stale snapshot is preferable to hanging the pipeline, so a
	// friends-wait timeout just means reading whatever is stored.
	if _, err := friendsWait.Await(ctx).Unpack(); err != nil {
		c.cfg.Logger.DebugS(ctx, "Proceeding with stale snapshot",
			"user_id", userID, "err", err)
	}

	current, err := c.cfg.Ledger.CurrentFriends(ctx)
	if err != nil {
		retErr = fmt.Errorf("load current snapshot: %w", err)
		return outcome, retErr
	}

	result.FollowsYouBack = slices.Contains(current, userID)
	if _, err := fsm.ProcessEvent(SnapshotCheckedEvent{
		FollowsBack: result.FollowsYouBack,
	}); err != nil {
		return outcome, err
	}

	if result.FollowsYouBack {
		outcome = metrics.OutcomeFollowBack
	} else {
		outcome = metrics.OutcomeNoFollowBack
	}

	// Always revert the probe follow, whether or not the user followed
	// back: the account must return to its baseline after every probe.
	c.cfg.Interceptor.Arm(intercept.ArmedTarget{
		UserID: userID,
		Action: intercept.ActionUnfollow,
	})

	unfollowWait := bus.AwaitUnfollowCompleted(
		c.cfg.Bus, userID, c.cfg.FollowTimeout,
	)

	if err := c.cfg.Trigger.TriggerUnfollow(ctx); err != nil {
		result.UnfollowSuccess = false
		c.escalate(ctx, userID, fmt.Sprintf(
			"unfollow trigger failed: %v", err,
		))

		return outcome, retErr
	}

	unfollowSuccess, waitErr := unfollowWait.Await(ctx).Unpack()
	result.UnfollowSuccess = waitErr == nil && unfollowSuccess

	if _, err := fsm.ProcessEvent(UnfollowResolvedEvent{
		Success: result.UnfollowSuccess,
	}); err != nil {
		return outcome, err
	}

	if !result.UnfollowSuccess {
		reason := "unfollow call failed"
		if waitErr != nil {
			reason = fmt.Sprintf("unfollow unconfirmed: %v", waitErr)
		}
		c.escalate(ctx, userID, reason)
	}

	return outcome, retErr
}

// escalate writes a failed-unfollow record distinct from the normal result;
// these violate the always-reverted invariant and need manual cleanup.
func (c *Coordinator) escalate(ctx context.Context, userID, reason string) {
	c.cfg.Logger.ErrorS(ctx, "Unfollow failed, needs manual remediation",
		errors.New(reason), "user_id", userID)

	rec := ledger.FailedUnfollow{
		ID:        uuid.New().String(),
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := c.cfg.Ledger.AppendFailedUnfollow(ctx, rec); err != nil {
		c.cfg.Logger.ErrorS(ctx, "Failed to record escalation", err,
			"user_id", userID)
	}

	c.escalations++
	metrics.RecordFailedUnfollow()
}
