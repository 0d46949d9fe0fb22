package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// friendsInitial and friendsCurrent select a single snapshot; both
	// unset shows the two side by side.
	friendsInitial bool
	friendsCurrent bool
)

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Show the stored friend snapshots",
	Long: `Friends shows the two friend-list snapshots the engine keeps: the
initial baseline captured when the session started, and the current list
from the most recent refresh. Users present in the baseline are never
probed.`,
	RunE: runFriends,
}

func init() {
	friendsCmd.Flags().BoolVar(
		&friendsInitial, "initial", false,
		"Only show the initial baseline",
	)
	friendsCmd.Flags().BoolVar(
		&friendsCurrent, "current", false,
		"Only show the current snapshot",
	)
	friendsCmd.MarkFlagsMutuallyExclusive("initial", "current")
}

func runFriends(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	snapshots := make(map[string][]string)
	if !friendsCurrent {
		snapshots["initial"], err = store.InitialFriends(cmd.Context())
		if err != nil {
			return err
		}
	}
	if !friendsInitial {
		snapshots["current"], err = store.CurrentFriends(cmd.Context())
		if err != nil {
			return err
		}
	}

	if outputFormat == "json" {
		return printJSON(snapshots)
	}

	if ids, ok := snapshots["initial"]; ok {
		fmt.Printf("Initial baseline (%d):\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
	}
	if ids, ok := snapshots["current"]; ok {
		fmt.Printf("Current snapshot (%d):\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
	}

	return nil
}
