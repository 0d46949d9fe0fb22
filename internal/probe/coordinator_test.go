package probe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/immdipu/follower-detector/internal/build"
	"github.com/immdipu/follower-detector/internal/bus"
	"github.com/immdipu/follower-detector/internal/intercept"
	"github.com/immdipu/follower-detector/internal/ledger"
	"github.com/immdipu/follower-detector/internal/payload"
)

const (
	testFollowURL        = "https://app.example.com/api/v1/follow/"
	testRelationshipsURL = "https://app.example.com/api/v1/relationships/"

	// Short timings keep the timeout paths fast in tests.
	testTimeout = 300 * time.Millisecond
)

// fakePlatform plays the remote service: it answers forwarded calls with
// scripted statuses and serves its friend list on the relationships
// endpoint. Users listed in followsBack start following back once the probe
// follow lands.
type fakePlatform struct {
	mu sync.Mutex

	followStatus   int
	unfollowStatus int
	friends        []string
	followsBack    map[string]bool

	// rejects lists user IDs whose follow calls fail regardless of the
	// global follow status.
	rejects map[string]bool
}

func newFakePlatform(friends ...string) *fakePlatform {
	return &fakePlatform{
		followStatus:   200,
		unfollowStatus: 200,
		friends:        friends,
		followsBack:    make(map[string]bool),
		rejects:        make(map[string]bool),
	}
}

func (p *fakePlatform) Forward(_ context.Context,
	req intercept.Request) (intercept.Response, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.Contains(req.URL, "/unfollow/"):
		return intercept.Response{Status: p.unfollowStatus}, nil

	case strings.Contains(req.URL, "/follow/"):
		var body struct {
			UserID string `json:"user_id"`
		}
		decodable := json.Unmarshal(req.Body, &body) == nil

		if decodable && p.rejects[body.UserID] {
			return intercept.Response{Status: 403}, nil
		}
		if p.followStatus == 200 && decodable &&
			p.followsBack[body.UserID] {

			p.friends = append(p.friends, body.UserID)
		}

		return intercept.Response{Status: p.followStatus}, nil

	case strings.Contains(req.URL, "/relationships/"):
		body, err := json.Marshal(p.friends)
		if err != nil {
			return intercept.Response{}, err
		}

		return intercept.Response{Status: 200, Body: body}, nil

	default:
		return intercept.Response{Status: 200}, nil
	}
}

// bridgeTrigger plays the UI layer: each trigger asynchronously emits the
// network call the real page would make, routed through the interceptor like
// traffic from the browser bridge.
type bridgeTrigger struct {
	it *intercept.Interceptor

	mu            sync.Mutex
	followCalls   int
	unfollowCalls int

	// followBody is the authentic payload carried by follow calls; empty
	// simulates a page that never exposes one.
	followBody []byte

	// refreshFriends emits a relationships call after each follow,
	// mirroring the page reloading its friend list.
	refreshFriends bool

	// failFollow and failUnfollow make the corresponding trigger fail
	// without emitting any network call, simulating an unreachable UI
	// control.
	failFollow   bool
	failUnfollow bool
}

// The coordinator registers its waits before triggering and the completion
// promise buffers early results, so emitting synchronously here is safe and
// keeps the tests deterministic.
func (b *bridgeTrigger) TriggerFollow(ctx context.Context) error {
	if b.failFollow {
		return errors.New("follow control unreachable")
	}

	b.mu.Lock()
	b.followCalls++
	b.mu.Unlock()

	b.emit(ctx)

	return nil
}

func (b *bridgeTrigger) TriggerUnfollow(ctx context.Context) error {
	if b.failUnfollow {
		return errors.New("unfollow control unreachable")
	}

	b.mu.Lock()
	b.unfollowCalls++
	b.mu.Unlock()

	b.emit(ctx)

	return nil
}

func (b *bridgeTrigger) emit(ctx context.Context) {
	//nolint:errcheck
	b.it.HandleRequest(ctx, intercept.Request{
		URL:    testFollowURL,
		Method: "POST",
		Body:   b.followBody,
	})

	if b.refreshFriends {
		//nolint:errcheck
		b.it.HandleRequest(ctx, intercept.Request{
			URL:    testRelationshipsURL,
			Method: "GET",
		})
	}
}

func (b *bridgeTrigger) calls() (follows, unfollows int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.followCalls, b.unfollowCalls
}

// harness wires a coordinator against the fake platform with the session
// baseline already seeded, the way a live session starts.
type harness struct {
	coordinator *Coordinator
	platform    *fakePlatform
	trigger     *bridgeTrigger
	ledger      *ledger.MockLedger
	interceptor *intercept.Interceptor
}

func newHarness(t *testing.T, platform *fakePlatform) *harness {
	t.Helper()

	logger := build.NewTestLogger()
	eventBus := bus.New()
	store := ledger.NewMockLedger()

	interceptor := intercept.New(intercept.Config{
		Bus:       eventBus,
		Templates: payload.NewStore("user_id"),
		Forwarder: platform,
		Snapshots: store,
		Endpoints: intercept.DefaultEndpoints(),
		Logger:    logger,
	})

	// Seed the session baseline through the same path the bridge uses.
	_, err := interceptor.HandleRequest(context.Background(),
		intercept.Request{URL: testRelationshipsURL, Method: "GET"})
	require.NoError(t, err)

	trigger := &bridgeTrigger{
		it:             interceptor,
		followBody:     []byte(`{"user_id":"self","surface":"profile"}`),
		refreshFriends: true,
	}

	coordinator := New(Config{
		Bus:            eventBus,
		Interceptor:    interceptor,
		Ledger:         store,
		Trigger:        trigger,
		Logger:         logger,
		FollowTimeout:  testTimeout,
		FriendsTimeout: testTimeout,
		InterUserDelay: time.Millisecond,
	})

	return &harness{
		coordinator: coordinator,
		platform:    platform,
		trigger:     trigger,
		ledger:      store,
		interceptor: interceptor,
	}
}

// TestCoordinatorDetectsFollowBack runs the happy path: follow succeeds, the
// refreshed friend list includes the target, and the probe follow is
// reverted.
func TestCoordinatorDetectsFollowBack(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform("old-friend")
	platform.followsBack["u1"] = true

	h := newHarness(t, platform)

	summary, err := h.coordinator.Run(context.Background(), []string{"u1"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Probed)
	require.Equal(t, 1, summary.FollowBacks)
	require.Zero(t, summary.Failures)
	require.Zero(t, summary.Escalations)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "u1", results[0].UserID)
	require.True(t, results[0].FollowSuccess)
	require.True(t, results[0].FollowsYouBack)
	require.True(t, results[0].UnfollowSuccess)
	require.NotEmpty(t, results[0].ID)
	require.False(t, results[0].Timestamp.IsZero())

	// The follow was reverted exactly once.
	follows, unfollows := h.trigger.calls()
	require.Equal(t, 1, follows)
	require.Equal(t, 1, unfollows)

	completed, err := h.ledger.IsCompleted(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, completed)
}

// TestCoordinatorFollowRejection verifies a rejected follow is recorded as a
// failure with nothing to revert.
func TestCoordinatorFollowRejection(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.followStatus = 403

	h := newHarness(t, platform)

	summary, err := h.coordinator.Run(context.Background(), []string{"u2"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Probed)
	require.Equal(t, 1, summary.Failures)
	require.Zero(t, summary.FollowBacks)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].FollowSuccess)
	require.False(t, results[0].FollowsYouBack)

	// Nothing was followed, so the revert is vacuously successful and no
	// unfollow was attempted.
	require.True(t, results[0].UnfollowSuccess)
	_, unfollows := h.trigger.calls()
	require.Zero(t, unfollows)

	// A failed probe still marks the user complete.
	completed, err := h.ledger.IsCompleted(context.Background(), "u2")
	require.NoError(t, err)
	require.True(t, completed)
}

// TestCoordinatorNoFollowBack verifies the negative detection still reverts
// the probe follow.
func TestCoordinatorNoFollowBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakePlatform("old-friend"))

	summary, err := h.coordinator.Run(context.Background(), []string{"u3"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Probed)
	require.Zero(t, summary.FollowBacks)
	require.Zero(t, summary.Failures)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].FollowSuccess)
	require.False(t, results[0].FollowsYouBack)
	require.True(t, results[0].UnfollowSuccess)
}

// TestCoordinatorSkipsCompletedAndBaselineUsers verifies the idempotency
// guards: already-probed users and pre-existing friends never trigger
// network activity.
func TestCoordinatorSkipsCompletedAndBaselineUsers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakePlatform("old-friend"))

	require.NoError(t,
		h.ledger.MarkCompleted(context.Background(), "done-user"))

	summary, err := h.coordinator.Run(context.Background(),
		[]string{"done-user", "old-friend"})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Skipped)
	require.Zero(t, summary.Probed)

	follows, unfollows := h.trigger.calls()
	require.Zero(t, follows)
	require.Zero(t, unfollows)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Empty(t, results)
}

// TestCoordinatorEscalatesFailedUnfollow verifies that a rejected unfollow
// produces an escalation record on top of the normal result.
func TestCoordinatorEscalatesFailedUnfollow(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.unfollowStatus = 500

	h := newHarness(t, platform)

	// A leftover escalation from an earlier session must not leak into
	// this run's count.
	require.NoError(t, h.ledger.AppendFailedUnfollow(context.Background(),
		ledger.FailedUnfollow{
			ID: "old", UserID: "stale-user",
			Reason:    "unfollow call failed",
			Timestamp: time.Now().UTC().Add(-time.Hour),
		}))

	summary, err := h.coordinator.Run(context.Background(), []string{"u4"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Probed)
	require.Equal(t, 1, summary.Escalations)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].FollowSuccess)
	require.False(t, results[0].UnfollowSuccess)

	failed, err := h.ledger.FailedUnfollows(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 2)
	require.Equal(t, "u4", failed[0].UserID)
	require.NotEmpty(t, failed[0].Reason)
}

// TestCoordinatorFollowTriggerFailure verifies an unreachable follow control
// records a failed probe with nothing to revert: no unfollow attempt and no
// escalation.
func TestCoordinatorFollowTriggerFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakePlatform())
	h.trigger.failFollow = true

	summary, err := h.coordinator.Run(context.Background(), []string{"u9"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Probed)
	require.Equal(t, 1, summary.Failures)
	require.Zero(t, summary.Escalations)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].FollowSuccess)
	require.True(t, results[0].UnfollowSuccess)

	follows, unfollows := h.trigger.calls()
	require.Zero(t, follows)
	require.Zero(t, unfollows)

	failed, err := h.ledger.FailedUnfollows(context.Background())
	require.NoError(t, err)
	require.Empty(t, failed)

	// The user still counts as completed; retrying would double-probe.
	completed, err := h.ledger.IsCompleted(context.Background(), "u9")
	require.NoError(t, err)
	require.True(t, completed)
}

// TestCoordinatorUnfollowTriggerFailure verifies an unreachable unfollow
// control escalates: the follow landed and was never reverted.
func TestCoordinatorUnfollowTriggerFailure(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.followsBack["u10"] = true

	h := newHarness(t, platform)
	h.trigger.failUnfollow = true

	summary, err := h.coordinator.Run(context.Background(),
		[]string{"u10"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Probed)
	require.Equal(t, 1, summary.FollowBacks)
	require.Equal(t, 1, summary.Escalations)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].FollowSuccess)
	require.True(t, results[0].FollowsYouBack)
	require.False(t, results[0].UnfollowSuccess)

	failed, err := h.ledger.FailedUnfollows(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "u10", failed[0].UserID)
	require.Contains(t, failed[0].Reason, "unfollow trigger failed")
}

// TestCoordinatorStaleSnapshotOnFriendsTimeout verifies that a page which
// never refreshes its friend list does not hang the probe: the follows-back
// check reads the stored snapshot and the revert still runs.
func TestCoordinatorStaleSnapshotOnFriendsTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakePlatform())
	h.trigger.refreshFriends = false

	// The stored snapshot predates this probe; its contents are what the
	// check must fall back on.
	require.NoError(t, h.ledger.SetCurrentFriends(context.Background(),
		[]string{"u11"}))

	summary, err := h.coordinator.Run(context.Background(),
		[]string{"u11"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Probed)
	require.Equal(t, 1, summary.FollowBacks)
	require.Zero(t, summary.Escalations)

	results, err := h.ledger.DetectionResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].FollowSuccess)
	require.True(t, results[0].FollowsYouBack)
	require.True(t, results[0].UnfollowSuccess)

	// The revert ran despite the missing refresh.
	_, unfollows := h.trigger.calls()
	require.Equal(t, 1, unfollows)
}

// TestCoordinatorMissingTemplateClosesSession verifies that a page which
// never exposes a follow payload kills the batch after the first user
// instead of burning the whole queue on render failures.
func TestCoordinatorMissingTemplateClosesSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakePlatform())
	h.trigger.followBody = nil

	summary, err := h.coordinator.Run(context.Background(),
		[]string{"u5", "u6"})
	require.ErrorIs(t, err, ErrSessionClosed)

	// Only the first user was attempted; its result records the failed
	// follow.
	require.Equal(t, 1, summary.Probed)
	require.Equal(t, 1, summary.Failures)

	results, resErr := h.ledger.DetectionResults(context.Background())
	require.NoError(t, resErr)
	require.Len(t, results, 1)
	require.Equal(t, "u5", results[0].UserID)
	require.False(t, results[0].FollowSuccess)

	require.Error(t, h.interceptor.Err())
}

// TestCoordinatorStopBetweenUsers verifies Stop halts the batch before the
// next user starts.
func TestCoordinatorStopBetweenUsers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newFakePlatform())
	h.coordinator.Stop()

	summary, err := h.coordinator.Run(context.Background(),
		[]string{"u7", "u8"})
	require.NoError(t, err)
	require.Zero(t, summary.Probed)
	require.Zero(t, summary.Skipped)

	follows, _ := h.trigger.calls()
	require.Zero(t, follows)
}
