package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btclog/v2"
)

// SQLStore is the durable SQLite-backed Ledger implementation.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens the database at dbPath, applies any pending migrations,
// and returns a ready-to-use store.
func NewSQLStore(dbPath string, log btclog.Logger) (*SQLStore, error) {
	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := ApplyMigrations(db, log); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

// NewSQLStoreFromDB wraps an existing database connection. The schema must
// already be in place; used by tests running against in-memory databases.
func NewSQLStoreFromDB(db *sql.DB, log btclog.Logger) (*SQLStore, error) {
	if err := ApplyMigrations(db, log); err != nil {
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// AppendDetectionResult records a finished probe.
func (s *SQLStore) AppendDetectionResult(ctx context.Context,
	res DetectionResult) error {

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detection_results
			(id, user_id, follow_success, follows_you_back,
			 unfollow_success, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, res.UserID, boolToInt(res.FollowSuccess),
		boolToInt(res.FollowsYouBack), boolToInt(res.UnfollowSuccess),
		res.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append detection result: %w", err)
	}

	return nil
}

// AppendFailedUnfollow records an escalated unfollow failure.
func (s *SQLStore) AppendFailedUnfollow(ctx context.Context,
	rec FailedUnfollow) error {

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_unfollows (id, user_id, reason, created_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Reason, rec.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append failed unfollow: %w", err)
	}

	return nil
}

// IsCompleted reports whether the user was already probed in this or a prior
// session.
func (s *SQLStore) IsCompleted(ctx context.Context,
	userID string) (bool, error) {

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM completed_users WHERE user_id = ?`,
		userID,
	).Scan(&one)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil

	case err != nil:
		return false, fmt.Errorf("query completed user: %w", err)
	}

	return true, nil
}

// MarkCompleted adds the user to the completed set. Re-marking is a no-op.
func (s *SQLStore) MarkCompleted(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completed_users (user_id, completed_at)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	return nil
}

// InitialFriends returns the stored baseline snapshot.
func (s *SQLStore) InitialFriends(ctx context.Context) ([]string, error) {
	return s.snapshot(ctx, SnapshotInitial)
}

// SetInitialFriends stores the baseline snapshot.
func (s *SQLStore) SetInitialFriends(ctx context.Context,
	ids []string) error {

	return s.setSnapshot(ctx, SnapshotInitial, ids)
}

// CurrentFriends returns the most recent friend snapshot.
func (s *SQLStore) CurrentFriends(ctx context.Context) ([]string, error) {
	return s.snapshot(ctx, SnapshotCurrent)
}

// SetCurrentFriends replaces the current friend snapshot wholesale.
func (s *SQLStore) SetCurrentFriends(ctx context.Context,
	ids []string) error {

	return s.setSnapshot(ctx, SnapshotCurrent, ids)
}

// DetectionResults returns all recorded results, newest first.
func (s *SQLStore) DetectionResults(
	ctx context.Context) ([]DetectionResult, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, follow_success, follows_you_back,
		       unfollow_success, created_at
		FROM detection_results
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query detection results: %w", err)
	}
	defer rows.Close()

	var results []DetectionResult
	for rows.Next() {
		var (
			res                          DetectionResult
			follow, back, unfollow, unix int64
		)
		err := rows.Scan(
			&res.ID, &res.UserID, &follow, &back, &unfollow, &unix,
		)
		if err != nil {
			return nil, fmt.Errorf("scan detection result: %w", err)
		}

		res.FollowSuccess = follow != 0
		res.FollowsYouBack = back != 0
		res.UnfollowSuccess = unfollow != 0
		res.Timestamp = time.Unix(unix, 0).UTC()

		results = append(results, res)
	}

	return results, rows.Err()
}

// FailedUnfollows returns all escalation records, newest first.
func (s *SQLStore) FailedUnfollows(
	ctx context.Context) ([]FailedUnfollow, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, reason, created_at
		FROM failed_unfollows
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query failed unfollows: %w", err)
	}
	defer rows.Close()

	var records []FailedUnfollow
	for rows.Next() {
		var (
			rec  FailedUnfollow
			unix int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Reason, &unix); err != nil {
			return nil, fmt.Errorf("scan failed unfollow: %w", err)
		}

		rec.Timestamp = time.Unix(unix, 0).UTC()
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *SQLStore) snapshot(ctx context.Context,
	kind SnapshotKind) ([]string, error) {

	var idsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT ids_json FROM friend_snapshots WHERE kind = ?`,
		string(kind),
	).Scan(&idsJSON)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil

	case err != nil:
		return nil, fmt.Errorf("query %s snapshot: %w", kind, err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return nil, fmt.Errorf("decode %s snapshot: %w", kind, err)
	}

	return ids, nil
}

func (s *SQLStore) setSnapshot(ctx context.Context, kind SnapshotKind,
	ids []string) error {

	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", kind, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO friend_snapshots (kind, ids_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			ids_json = excluded.ids_json,
			updated_at = excluded.updated_at`,
		string(kind), string(idsJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store %s snapshot: %w", kind, err)
	}

	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

// Ensure SQLStore satisfies the interface.
var _ Ledger = (*SQLStore)(nil)
