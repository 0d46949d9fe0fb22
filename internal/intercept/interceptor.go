// Package intercept sits on every outbound network call delivered by the
// browser bridge, classifies it as follow/unfollow, relationships, or other,
// and rewrites follow/unfollow calls to target the currently-armed user. The
// real responses are translated into completion events on the bus; this is
// the only channel through which the coordinator learns of outcomes, because
// the UI trigger and the network call it causes are fully decoupled.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/immdipu/follower-detector/internal/bus"
	"github.com/immdipu/follower-detector/internal/ledger"
	"github.com/immdipu/follower-detector/internal/payload"
)

// statusOK is the sole success criterion for follow, unfollow, and
// relationships responses.
const statusOK = 200

// Action selects which platform operation an armed target expects.
type Action uint8

const (
	// ActionFollow arms the interceptor to rewrite the next follow call.
	ActionFollow Action = iota

	// ActionUnfollow arms the interceptor to rewrite the next follow
	// call into its unfollow sibling.
	ActionUnfollow
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionFollow:
		return "follow"
	case ActionUnfollow:
		return "unfollow"
	default:
		return fmt.Sprintf("action(%d)", a)
	}
}

// ArmedTarget is the single user currently configured to have its payload
// substituted. Exactly one may be armed at a time; users are probed strictly
// sequentially.
type ArmedTarget struct {
	UserID string
	Action Action
}

// Request is an outbound network call observed on the wire.
type Request struct {
	URL    string
	Method string
	Body   []byte
}

// Response is the real platform response to a forwarded call.
type Response struct {
	Status int
	Body   []byte
}

// Forwarder replays a (possibly rewritten) call against the platform and
// returns the real response.
type Forwarder interface {
	Forward(ctx context.Context, req Request) (Response, error)
}

// SnapshotSink is the slice of the ledger the interceptor writes friend
// snapshots through.
type SnapshotSink interface {
	SetInitialFriends(ctx context.Context, ids []string) error
	SetCurrentFriends(ctx context.Context, ids []string) error
}

// Endpoints holds the URL substrings used to classify calls. The unfollow
// call is derived by rewriting the follow path; a platform with a true
// sibling unfollow endpoint works by configuring both paths.
type Endpoints struct {
	FollowPath        string
	UnfollowPath      string
	RelationshipsPath string
}

// DefaultEndpoints returns the endpoint classification paths for the target
// platform.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		FollowPath:        "/follow/",
		UnfollowPath:      "/unfollow/",
		RelationshipsPath: "/relationships/",
	}
}

// Config bundles the interceptor's collaborators.
type Config struct {
	Bus       *bus.Bus
	Templates *payload.Store
	Forwarder Forwarder
	Snapshots SnapshotSink
	Endpoints Endpoints
	Logger    btclog.Logger
}

// Interceptor classifies and rewrites outbound calls. It owns the payload
// template and the seeded-baseline flag; the armed target is owned by the
// coordinator and only read here.
type Interceptor struct {
	cfg Config

	mu     sync.Mutex
	armed  fn.Option[ArmedTarget]
	seeded bool

	// fatal records the first unrecoverable error (such as a missing
	// template) so the coordinator can abort the batch.
	fatal error
}

// New creates an interceptor.
func New(cfg Config) *Interceptor {
	return &Interceptor{
		cfg:   cfg,
		armed: fn.None[ArmedTarget](),
	}
}

// Arm configures the target whose ID will be substituted into the next
// follow/unfollow call. Called by the coordinator immediately before
// triggering a UI action.
func (it *Interceptor) Arm(target ArmedTarget) {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.armed = fn.Some(target)
}

// Disarm clears the armed target. Called unconditionally when a probe
// finishes, including on error, so a failure never leaves a stale target
// armed for the next user.
func (it *Interceptor) Disarm() {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.armed = fn.None[ArmedTarget]()
}

// Err returns the first fatal error the interceptor encountered, or nil.
func (it *Interceptor) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	return it.fatal
}

// HandleRequest processes one observed outbound call: follow/unfollow calls
// are rewritten for the armed target, relationships calls pass through and
// feed the friend snapshots, and everything else passes through untouched.
// The returned response is handed back to the bridge to fulfill the page's
// original request.
func (it *Interceptor) HandleRequest(ctx context.Context,
	req Request) (Response, error) {

	switch it.classify(req.URL) {
	case callFollow:
		return it.handleFollowCall(ctx, req)

	case callRelationships:
		return it.handleRelationshipsCall(ctx, req)

	default:
		// Unrelated calls pass through unmodified and unobserved.
		return it.cfg.Forwarder.Forward(ctx, req)
	}
}

// callKind is the classification of an outbound call.
type callKind uint8

const (
	callOther callKind = iota
	callFollow
	callRelationships
)

func (it *Interceptor) classify(url string) callKind {
	switch {
	case strings.Contains(url, it.cfg.Endpoints.FollowPath),
		strings.Contains(url, it.cfg.Endpoints.UnfollowPath):

		return callFollow

	case strings.Contains(url, it.cfg.Endpoints.RelationshipsPath):
		return callRelationships

	default:
		return callOther
	}
}

// handleFollowCall rewrites a follow/unfollow call for the armed target and
// emits the correlated completion event. Unarmed calls (manual or
// incidental) pass through so they cannot corrupt the pipeline.
func (it *Interceptor) handleFollowCall(ctx context.Context,
	req Request) (Response, error) {

	// Capture the authentic body opportunistically; first-writer-wins,
	// so this is a no-op once a template exists. Capture failures are
	// not fatal here: the body may be empty on incidental calls.
	if len(req.Body) > 0 {
		if err := it.cfg.Templates.Capture(req.Body); err != nil {
			it.cfg.Logger.DebugS(ctx, "Skipping template capture",
				"err", err)
		}
	}

	it.mu.Lock()
	armed := it.armed
	it.mu.Unlock()

	if armed.IsNone() {
		return it.cfg.Forwarder.Forward(ctx, req)
	}
	target := armed.UnwrapOr(ArmedTarget{})

	rendered, err := it.cfg.Templates.Render(target.UserID)
	if err != nil {
		// A missing template means nothing can proceed this session.
		if errors.Is(err, payload.ErrTemplateMissing) {
			it.recordFatal(ctx, err)
		}

		return Response{}, fmt.Errorf("render payload for %q: %w",
			target.UserID, err)
	}

	rewritten := Request{
		URL:    req.URL,
		Method: req.Method,
		Body:   rendered,
	}
	if target.Action == ActionUnfollow {
		rewritten.URL = strings.Replace(
			req.URL, it.cfg.Endpoints.FollowPath,
			it.cfg.Endpoints.UnfollowPath, 1,
		)
	}

	resp, err := it.cfg.Forwarder.Forward(ctx, rewritten)
	success := err == nil && resp.Status == statusOK

	it.cfg.Logger.InfoS(ctx, "Forwarded rewritten call",
		"action", target.Action, "user_id", target.UserID,
		"status", resp.Status, "success", success)

	// The completion event is the only way the coordinator learns the
	// outcome; it is emitted even when forwarding itself failed.
	switch target.Action {
	case ActionFollow:
		it.cfg.Bus.Publish(bus.FollowCompleted{
			UserID:  target.UserID,
			Success: success,
		})

	case ActionUnfollow:
		it.cfg.Bus.Publish(bus.UnfollowCompleted{
			UserID:  target.UserID,
			Success: success,
		})
	}

	if err != nil {
		return Response{}, fmt.Errorf("forward %s call: %w",
			target.Action, err)
	}

	return resp, nil
}

// handleRelationshipsCall passes a relationships call through and relays the
// resulting friend-ID list. The very first successful observation seeds the
// session's initial baseline and is not re-broadcast; every later one
// replaces the current snapshot and is published.
func (it *Interceptor) handleRelationshipsCall(ctx context.Context,
	req Request) (Response, error) {

	resp, err := it.cfg.Forwarder.Forward(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("forward relationships call: %w", err)
	}
	if resp.Status != statusOK {
		return resp, nil
	}

	ids, err := ParseFriendIDs(resp.Body)
	if err != nil {
		it.cfg.Logger.WarnS(ctx, "Undecodable relationships response",
			err)
		return resp, nil
	}

	it.mu.Lock()
	first := !it.seeded
	it.seeded = true
	it.mu.Unlock()

	if first {
		if err := it.cfg.Snapshots.SetInitialFriends(ctx, ids); err != nil {
			// The baseline was not persisted, so the next
			// observation must seed it again instead of landing in
			// the current snapshot.
			it.mu.Lock()
			it.seeded = false
			it.mu.Unlock()

			return resp, fmt.Errorf("seed initial snapshot: %w", err)
		}

		it.cfg.Logger.InfoS(ctx, "Seeded initial friends baseline",
			"friends", len(ids))

		return resp, nil
	}

	if err := it.cfg.Snapshots.SetCurrentFriends(ctx, ids); err != nil {
		return resp, fmt.Errorf("replace current snapshot: %w", err)
	}

	it.cfg.Bus.Publish(bus.FriendsReceived{FriendIDs: ids})

	return resp, nil
}

// recordFatal stores the first unrecoverable error and announces the
// session's end on the bus so the coordinator stops between users.
func (it *Interceptor) recordFatal(ctx context.Context, err error) {
	it.mu.Lock()
	alreadyFatal := it.fatal != nil
	if !alreadyFatal {
		it.fatal = err
	}
	it.mu.Unlock()

	if alreadyFatal {
		return
	}

	it.cfg.Logger.ErrorS(ctx, "Fatal interceptor error", err)
	it.cfg.Bus.Publish(bus.SessionClosed{Reason: err.Error()})
}

// Ensure the snapshot sink contract stays aligned with the ledger.
var _ SnapshotSink = (ledger.Ledger)(nil)
