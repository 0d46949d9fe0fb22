package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/immdipu/follower-detector/internal/probe"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8799", cfg.ListenAddr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "user_id", cfg.RecipientField)
	require.Equal(t, TriggerBridge, cfg.TriggerMode)
	require.Equal(t, probe.DefaultFollowTimeout, cfg.FollowTimeout)
	require.Equal(t, probe.DefaultFriendsTimeout, cfg.FriendsTimeout)
	require.Equal(t, probe.DefaultInterUserDelay, cfg.InterUserDelay)
	require.Equal(t, "/follow/", cfg.Endpoints.FollowPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FD_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("FD_LOG_LEVEL", "DEBUG")
	t.Setenv("FD_RECIPIENT_FIELD", "target_id")
	t.Setenv("FD_FOLLOW_TIMEOUT", "2s")
	t.Setenv("FD_FRIENDS_TIMEOUT", "5") // bare int means seconds
	t.Setenv("FD_INTER_USER_DELAY", "bogus")
	t.Setenv("FD_FOLLOW_PATH", "/v2/create_friendship/")
	t.Setenv("FD_UNFOLLOW_PATH", "/v2/destroy_friendship/")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "target_id", cfg.RecipientField)
	require.Equal(t, 2*time.Second, cfg.FollowTimeout)
	require.Equal(t, 5*time.Second, cfg.FriendsTimeout)

	// Unparseable durations fall back to the default.
	require.Equal(t, probe.DefaultInterUserDelay, cfg.InterUserDelay)

	require.Equal(t, "/v2/create_friendship/", cfg.Endpoints.FollowPath)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "FD_LOG_LEVEL", "verbose"},
		{"bad trigger mode", "FD_TRIGGER_MODE", "manual"},
		{"follow timeout zero", "FD_FOLLOW_TIMEOUT", "0s"},
		{"negative delay", "FD_INTER_USER_DELAY", "-1s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadSidecarModeRequiresURL(t *testing.T) {
	t.Setenv("FD_TRIGGER_MODE", "sidecar")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("FD_SIDECAR_URL", "http://127.0.0.1:9515")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, TriggerSidecar, cfg.TriggerMode)
	require.Equal(t, "http://127.0.0.1:9515", cfg.SidecarURL)
}

func TestLoadRejectsEqualFollowPaths(t *testing.T) {
	t.Setenv("FD_FOLLOW_PATH", "/friendships/")
	t.Setenv("FD_UNFOLLOW_PATH", "/friendships/")

	_, err := Load()
	require.Error(t, err)
}
