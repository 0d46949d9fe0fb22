package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/spf13/cobra"

	"github.com/immdipu/follower-detector/internal/bridge"
	"github.com/immdipu/follower-detector/internal/build"
	"github.com/immdipu/follower-detector/internal/bus"
	"github.com/immdipu/follower-detector/internal/config"
	"github.com/immdipu/follower-detector/internal/intercept"
	"github.com/immdipu/follower-detector/internal/ledger"
	"github.com/immdipu/follower-detector/internal/metrics"
	"github.com/immdipu/follower-detector/internal/payload"
	"github.com/immdipu/follower-detector/internal/probe"
)

var (
	// usersFile is an optional file with one user ID per line.
	usersFile string

	// connectWait bounds the wait for the page script to connect.
	connectWait time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [user-id]...",
	Short: "Probe users for follow-backs",
	Long: `Run starts the bridge listener, waits for the page script to
connect, and probes the given users one at a time. Each probe follows the
user through the live session, checks the refreshed friend list, and
unfollows again.

User IDs come from the arguments, from --users-file, or both. Users already
probed in an earlier run and users you were already friends with are
skipped.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(
		&usersFile, "users-file", "",
		"File with one user ID per line",
	)
	runCmd.Flags().DurationVar(
		&connectWait, "connect-wait", time.Minute,
		"How long to wait for the page script to connect",
	)
}

func runRun(cmd *cobra.Command, args []string) error {
	var envFiles []string
	if configFile != "" {
		envFiles = append(envFiles, configFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath, err = ledger.DefaultDBPath()
		if err != nil {
			return err
		}
	}

	userIDs, err := collectUserIDs(args)
	if err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return errors.New("no user IDs given; pass them as " +
			"arguments or via --users-file")
	}

	level, _ := btclog.LevelFromString(cfg.LogLevel)
	newLogger, closeLogs, err := build.NewLoggerFactory(build.LogConfig{
		Level:  level,
		LogDir: cfg.LogDir,
	})
	if err != nil {
		return err
	}
	defer closeLogs()

	store, err := ledger.NewSQLStore(cfg.DBPath, newLogger(build.SubLedger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	eventBus := bus.New()
	interceptor := intercept.New(intercept.Config{
		Bus:       eventBus,
		Templates: payload.NewStore(cfg.RecipientField),
		Forwarder: intercept.NewRestyForwarder(0, nil),
		Snapshots: store,
		Endpoints: cfg.Endpoints,
		Logger:    newLogger(build.SubIntercept),
	})

	bridgeLog := newLogger(build.SubBridge)
	bridgeSrv := bridge.NewServer(interceptor, bridgeLog)
	defer bridgeSrv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           bridgeSrv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		bridgeLog.Infof("Bridge listening on ws://%s", cfg.ListenAddr)
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			bridgeLog.Errorf("Bridge listener failed: %v", err)
		}
	}()
	defer httpSrv.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				bridgeLog.Warnf("Metrics server failed: %v", err)
			}
		}()
	}

	var trigger probe.ActionTrigger = bridgeSrv
	if cfg.TriggerMode == config.TriggerSidecar {
		trigger = bridge.NewHTTPTrigger(cfg.SidecarURL)
	}

	coordinator := probe.New(probe.Config{
		Bus:            eventBus,
		Interceptor:    interceptor,
		Ledger:         store,
		Trigger:        trigger,
		Logger:         newLogger(build.SubProbe),
		FollowTimeout:  cfg.FollowTimeout,
		FriendsTimeout: cfg.FriendsTimeout,
		InterUserDelay: cfg.InterUserDelay,
	})

	// An interrupt stops the batch between users; the in-flight probe
	// still finishes its unfollow.
	ctx, stop := signal.NotifyContext(cmd.Context(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		coordinator.Stop()
	}()

	if err := waitForBridge(ctx, bridgeSrv); err != nil {
		return err
	}

	summary, err := coordinator.Run(ctx, userIDs)
	printSummary(summary)

	return err
}

// collectUserIDs merges positional arguments with --users-file contents,
// dropping blanks and duplicates while preserving order.
func collectUserIDs(args []string) ([]string, error) {
	ids := append([]string(nil), args...)

	if usersFile != "" {
		data, err := os.ReadFile(usersFile)
		if err != nil {
			return nil, fmt.Errorf("read users file: %w", err)
		}
		ids = append(ids, strings.Fields(string(data))...)
	}

	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	return out, nil
}

// waitForBridge blocks until the page script connects or the wait expires.
func waitForBridge(ctx context.Context, srv *bridge.Server) error {
	if srv.Connected() {
		return nil
	}

	fmt.Fprintln(os.Stderr, "Waiting for the page script to connect...")

	deadline := time.NewTimer(connectWait)
	defer deadline.Stop()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if srv.Connected() {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("no page script connected within %s",
				connectWait)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printSummary(s probe.Summary) {
	fmt.Printf("Probed:       %d\n", s.Probed)
	fmt.Printf("Follow backs: %d\n", s.FollowBacks)
	fmt.Printf("Failures:     %d\n", s.Failures)
	fmt.Printf("Escalations:  %d\n", s.Escalations)
	fmt.Printf("Skipped:      %d\n", s.Skipped)
}
