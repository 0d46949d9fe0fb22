package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/immdipu/follower-detector/internal/build"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "detector.db")
	store, err := NewSQLStore(dbPath, build.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLStoreDetectionResults(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := DetectionResult{
		ID: "r1", UserID: "alice",
		FollowSuccess: true, FollowsYouBack: true,
		UnfollowSuccess: true,
		Timestamp:       time.Now().UTC().Add(-time.Minute),
	}
	second := DetectionResult{
		ID: "r2", UserID: "bob",
		FollowSuccess: true, FollowsYouBack: false,
		UnfollowSuccess: false,
		Timestamp:       time.Now().UTC(),
	}
	require.NoError(t, store.AppendDetectionResult(ctx, first))
	require.NoError(t, store.AppendDetectionResult(ctx, second))

	results, err := store.DetectionResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Newest first.
	require.Equal(t, "bob", results[0].UserID)
	require.Equal(t, "alice", results[1].UserID)
	require.True(t, results[1].FollowsYouBack)
	require.False(t, results[0].UnfollowSuccess)
	require.WithinDuration(t,
		second.Timestamp, results[0].Timestamp, time.Second)
}

func TestSQLStoreFailedUnfollows(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	rec := FailedUnfollow{
		ID: "f1", UserID: "bob",
		Reason:    "unfollow unconfirmed: wait timed out",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.AppendFailedUnfollow(ctx, rec))

	records, err := store.FailedUnfollows(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "bob", records[0].UserID)
	require.Equal(t, rec.Reason, records[0].Reason)
}

func TestSQLStoreCompletedSet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	done, err := store.IsCompleted(ctx, "alice")
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, store.MarkCompleted(ctx, "alice"))

	// Marking again is a no-op, not an error.
	require.NoError(t, store.MarkCompleted(ctx, "alice"))

	done, err = store.IsCompleted(ctx, "alice")
	require.NoError(t, err)
	require.True(t, done)

	done, err = store.IsCompleted(ctx, "bob")
	require.NoError(t, err)
	require.False(t, done)
}

func TestSQLStoreSnapshots(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	// Unset snapshots read as empty.
	initial, err := store.InitialFriends(ctx)
	require.NoError(t, err)
	require.Empty(t, initial)

	require.NoError(t,
		store.SetInitialFriends(ctx, []string{"a", "b"}))
	require.NoError(t,
		store.SetCurrentFriends(ctx, []string{"a", "b", "c"}))

	initial, err = store.InitialFriends(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, initial)

	// Snapshots are replaced wholesale.
	require.NoError(t, store.SetCurrentFriends(ctx, []string{"c"}))

	current, err := store.CurrentFriends(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, current)
}

func TestSQLStoreFromExistingDB(t *testing.T) {
	t.Parallel()

	// Callers that manage the connection themselves hand it over with
	// migrations still pending.
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "detector.db"))
	require.NoError(t, err)

	store, err := NewSQLStoreFromDB(db, build.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.MarkCompleted(ctx, "alice"))

	done, err := store.IsCompleted(ctx, "alice")
	require.NoError(t, err)
	require.True(t, done)
}

func TestSQLStoreReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "detector.db")
	ctx := context.Background()

	store, err := NewSQLStore(dbPath, build.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, "alice"))
	require.NoError(t, store.Close())

	// Completion survives across sessions; re-running migrations on an
	// up-to-date database is a no-op.
	store, err = NewSQLStore(dbPath, build.NewTestLogger())
	require.NoError(t, err)
	defer store.Close()

	done, err := store.IsCompleted(ctx, "alice")
	require.NoError(t, err)
	require.True(t, done)
}
