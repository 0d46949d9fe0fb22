package ledger

import (
	"context"
	"sync"
)

// MockLedger is an in-memory Ledger for tests. All operations are safe for
// concurrent use.
type MockLedger struct {
	mu sync.Mutex

	results   []DetectionResult
	failed    []FailedUnfollow
	completed map[string]struct{}
	snapshots map[SnapshotKind][]string
}

// NewMockLedger creates an empty in-memory ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		completed: make(map[string]struct{}),
		snapshots: make(map[SnapshotKind][]string),
	}
}

// AppendDetectionResult records a finished probe.
func (m *MockLedger) AppendDetectionResult(_ context.Context,
	res DetectionResult) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.results = append(m.results, res)

	return nil
}

// AppendFailedUnfollow records an escalated unfollow failure.
func (m *MockLedger) AppendFailedUnfollow(_ context.Context,
	rec FailedUnfollow) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = append(m.failed, rec)

	return nil
}

// IsCompleted reports whether the user has already been probed.
func (m *MockLedger) IsCompleted(_ context.Context,
	userID string) (bool, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.completed[userID]

	return ok, nil
}

// MarkCompleted adds the user to the completed set.
func (m *MockLedger) MarkCompleted(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed[userID] = struct{}{}

	return nil
}

// InitialFriends returns the stored baseline snapshot.
func (m *MockLedger) InitialFriends(_ context.Context) ([]string, error) {
	return m.snapshot(SnapshotInitial), nil
}

// SetInitialFriends stores the baseline snapshot.
func (m *MockLedger) SetInitialFriends(_ context.Context,
	ids []string) error {

	m.setSnapshot(SnapshotInitial, ids)

	return nil
}

// CurrentFriends returns the most recent snapshot.
func (m *MockLedger) CurrentFriends(_ context.Context) ([]string, error) {
	return m.snapshot(SnapshotCurrent), nil
}

// SetCurrentFriends replaces the current snapshot.
func (m *MockLedger) SetCurrentFriends(_ context.Context,
	ids []string) error {

	m.setSnapshot(SnapshotCurrent, ids)

	return nil
}

// DetectionResults returns recorded results, newest first.
func (m *MockLedger) DetectionResults(
	_ context.Context) ([]DetectionResult, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DetectionResult, len(m.results))
	for i, res := range m.results {
		out[len(m.results)-1-i] = res
	}

	return out, nil
}

// FailedUnfollows returns escalation records, newest first.
func (m *MockLedger) FailedUnfollows(
	_ context.Context) ([]FailedUnfollow, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FailedUnfollow, len(m.failed))
	for i, rec := range m.failed {
		out[len(m.failed)-1-i] = rec
	}

	return out, nil
}

func (m *MockLedger) snapshot(kind SnapshotKind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.snapshots[kind]
	out := make([]string, len(stored))
	copy(out, stored)

	return out
}

func (m *MockLedger) setSnapshot(kind SnapshotKind, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]string, len(ids))
	copy(stored, ids)
	m.snapshots[kind] = stored
}

// Ensure MockLedger satisfies the interface.
var _ Ledger = (*MockLedger)(nil)
