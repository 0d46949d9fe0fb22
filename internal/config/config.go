// Package config provides engine configuration loaded from environment
// variables with defaults and validation. A .env file in the working
// directory is honored when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/immdipu/follower-detector/internal/intercept"
	"github.com/immdipu/follower-detector/internal/probe"
)

// Trigger modes.
const (
	// TriggerBridge sends UI triggers over the page script's WebSocket
	// session.
	TriggerBridge = "bridge"

	// TriggerSidecar posts UI triggers to a browser-automation sidecar.
	TriggerSidecar = "sidecar"
)

// Config holds all settings for the detection engine.
type Config struct {
	// Bridge server
	ListenAddr  string // FD_LISTEN_ADDR, host:port for the WebSocket feed
	MetricsAddr string // FD_METRICS_ADDR, empty disables the metrics server

	// Logging
	LogLevel string // FD_LOG_LEVEL: trace|debug|info|warn|error|critical
	LogDir   string // FD_LOG_DIR, empty disables file logging

	// Ledger
	DBPath string // FD_DB_PATH, empty selects the default location

	// Payload capture
	RecipientField string // FD_RECIPIENT_FIELD, key substituted per target

	// Call classification
	Endpoints intercept.Endpoints

	// Triggering
	TriggerMode string // FD_TRIGGER_MODE: bridge|sidecar
	SidecarURL  string // FD_SIDECAR_URL, required in sidecar mode

	// Probe timings
	FollowTimeout  time.Duration // FD_FOLLOW_TIMEOUT
	FriendsTimeout time.Duration // FD_FRIENDS_TIMEOUT
	InterUserDelay time.Duration // FD_INTER_USER_DELAY
}

// Load reads configuration from the given env files (or a .env file in the
// working directory when none are named) and the environment, applies
// defaults, and validates the result.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	} else {
		// Missing .env is the common case, not an error.
		_ = godotenv.Load()
	}

	defaults := intercept.DefaultEndpoints()

	cfg := Config{
		ListenAddr:  getenv("FD_LISTEN_ADDR", "127.0.0.1:8799"),
		MetricsAddr: getenv("FD_METRICS_ADDR", ""),

		LogLevel: strings.ToLower(getenv("FD_LOG_LEVEL", "info")),
		LogDir:   getenv("FD_LOG_DIR", ""),

		DBPath: getenv("FD_DB_PATH", ""),

		RecipientField: getenv("FD_RECIPIENT_FIELD", "user_id"),

		Endpoints: intercept.Endpoints{
			FollowPath: getenv("FD_FOLLOW_PATH",
				defaults.FollowPath),
			UnfollowPath: getenv("FD_UNFOLLOW_PATH",
				defaults.UnfollowPath),
			RelationshipsPath: getenv("FD_RELATIONSHIPS_PATH",
				defaults.RelationshipsPath),
		},

		TriggerMode: strings.ToLower(
			getenv("FD_TRIGGER_MODE", TriggerBridge)),
		SidecarURL: getenv("FD_SIDECAR_URL", ""),

		FollowTimeout: getdur("FD_FOLLOW_TIMEOUT",
			probe.DefaultFollowTimeout),
		FriendsTimeout: getdur("FD_FRIENDS_TIMEOUT",
			probe.DefaultFriendsTimeout),
		InterUserDelay: getdur("FD_INTER_USER_DELAY",
			probe.DefaultInterUserDelay),
	}

	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
	default:
		return cfg, errors.New("FD_LOG_LEVEL must be one of: trace, " +
			"debug, info, warn, error, critical")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return cfg, errors.New("FD_LISTEN_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.RecipientField) == "" {
		return cfg, errors.New("FD_RECIPIENT_FIELD must not be empty")
	}
	if cfg.Endpoints.FollowPath == "" || cfg.Endpoints.UnfollowPath == "" ||
		cfg.Endpoints.RelationshipsPath == "" {

		return cfg, errors.New("endpoint classification paths must " +
			"not be empty")
	}
	if cfg.Endpoints.FollowPath == cfg.Endpoints.UnfollowPath {
		return cfg, errors.New("FD_FOLLOW_PATH and FD_UNFOLLOW_PATH " +
			"must differ")
	}

	switch cfg.TriggerMode {
	case TriggerBridge:
	case TriggerSidecar:
		if strings.TrimSpace(cfg.SidecarURL) == "" {
			return cfg, errors.New("FD_SIDECAR_URL is required " +
				"in sidecar trigger mode")
		}
	default:
		return cfg, errors.New("FD_TRIGGER_MODE must be bridge or " +
			"sidecar")
	}

	if cfg.FollowTimeout <= 0 || cfg.FriendsTimeout <= 0 {
		return cfg, errors.New("probe timeouts must be positive " +
			"durations")
	}
	if cfg.InterUserDelay < 0 {
		return cfg, errors.New("FD_INTER_USER_DELAY must be >= 0")
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
