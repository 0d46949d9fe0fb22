package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/immdipu/follower-detector/internal/ledger"
)

func sampleResults() []ledger.DetectionResult {
	when := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	return []ledger.DetectionResult{
		{
			ID: "r1", UserID: "alice",
			FollowSuccess: true, FollowsYouBack: true,
			UnfollowSuccess: true, Timestamp: when,
		},
		{
			ID: "r2", UserID: "bob",
			FollowSuccess: true, FollowsYouBack: false,
			UnfollowSuccess: false, Timestamp: when,
		},
		{
			ID: "r3", UserID: "carol",
			FollowSuccess: false, UnfollowSuccess: true,
			Timestamp: when,
		},
	}
}

func TestMarkdownSummaryCounts(t *testing.T) {
	t.Parallel()

	failed := []ledger.FailedUnfollow{{
		ID: "f1", UserID: "bob",
		Reason:    "unfollow call failed",
		Timestamp: time.Now().UTC(),
	}}

	md := Markdown(sampleResults(), failed)

	require.Contains(t, md, "| 3 | 1 | 1 | 1 | 1 |")
	require.Contains(t, md, "| alice | yes | yes | yes |")
	require.Contains(t, md, "| carol | no | no | yes |")
	require.Contains(t, md, "## Unreverted Follows")
	require.Contains(t, md, "unfollow call failed")
}

func TestMarkdownEmptyRun(t *testing.T) {
	t.Parallel()

	md := Markdown(nil, nil)

	require.Contains(t, md, "| 0 | 0 | 0 | 0 | 0 |")
	require.NotContains(t, md, "## Results")
	require.NotContains(t, md, "## Unreverted Follows")
}

func TestHTMLRendersTables(t *testing.T) {
	t.Parallel()

	out, err := HTML(Markdown(sampleResults(), nil))
	require.NoError(t, err)

	html := string(out)
	require.Contains(t, html, "<!DOCTYPE html>")
	require.Contains(t, html, "<table>")
	require.Contains(t, html, "alice")
}
