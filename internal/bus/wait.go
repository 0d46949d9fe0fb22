package bus

import (
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrWaitTimeout is returned by a wait whose deadline elapsed before a
// matching event arrived. Timeout is terminal: the wait's listener is
// removed and a late event has no observable effect.
var ErrWaitTimeout = errors.New("wait deadline elapsed")

// awaitMatch registers a listener that resolves a fresh promise with the
// first event accepted by match, bounded by the given deadline. Whichever
// settles the promise first (event or timer) wins; the loser's attempt is a
// no-op. The listener and timer are both torn down as soon as the promise
// resolves.
func awaitMatch[T any](b *Bus, timeout time.Duration,
	match func(Event) (T, bool)) Future[T] {

	promise := NewPromise[T]()

	subID := b.Subscribe(func(event Event) {
		if value, ok := match(event); ok {
			promise.Complete(fn.Ok(value))
		}
	})

	timer := time.AfterFunc(timeout, func() {
		promise.Complete(fn.Err[T](ErrWaitTimeout))
	})

	future := promise.Future()
	future.OnComplete(func(fn.Result[T]) {
		timer.Stop()
		b.Unsubscribe(subID)
	})

	return future
}

// AwaitFollowCompleted waits for the follow completion event correlated to
// the given user. Events for any other user are ignored.
func AwaitFollowCompleted(b *Bus, userID string,
	timeout time.Duration) Future[bool] {

	return awaitMatch(b, timeout, func(event Event) (bool, bool) {
		completed, ok := event.(FollowCompleted)
		if !ok || completed.UserID != userID {
			return false, false
		}

		return completed.Success, true
	})
}

// AwaitUnfollowCompleted waits for the unfollow completion event correlated
// to the given user.
func AwaitUnfollowCompleted(b *Bus, userID string,
	timeout time.Duration) Future[bool] {

	return awaitMatch(b, timeout, func(event Event) (bool, bool) {
		completed, ok := event.(UnfollowCompleted)
		if !ok || completed.UserID != userID {
			return false, false
		}

		return completed.Success, true
	})
}

// AwaitFriendsReceived waits for the next friends-list broadcast. It carries
// no user correlation because the snapshot is a whole-list replacement.
func AwaitFriendsReceived(b *Bus,
	timeout time.Duration) Future[[]string] {

	return awaitMatch(b, timeout, func(event Event) ([]string, bool) {
		received, ok := event.(FriendsReceived)
		if !ok {
			return nil, false
		}

		return received.FriendIDs, true
	})
}
