package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// followBacksOnly filters the listing down to detected follow-backs.
var followBacksOnly bool

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List recorded detection results",
	Long: `Results lists every probe outcome recorded so far, newest first:
whether the follow landed, whether the user follows you back, and whether
the probe follow was reverted.`,
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().BoolVar(
		&followBacksOnly, "follow-backs-only", false,
		"Only show users that follow you back",
	)
}

func runResults(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.DetectionResults(cmd.Context())
	if err != nil {
		return err
	}

	if followBacksOnly {
		kept := results[:0]
		for _, res := range results {
			if res.FollowsYouBack {
				kept = append(kept, res)
			}
		}
		results = kept
	}

	if outputFormat == "json" {
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results recorded yet.")
		return nil
	}

	fmt.Printf("%-24s %-8s %-12s %-9s %s\n",
		"USER", "FOLLOW", "FOLLOWS BACK", "REVERTED", "WHEN")
	for _, res := range results {
		fmt.Printf("%-24s %-8s %-12s %-9s %s\n",
			res.UserID,
			yesNo(res.FollowSuccess),
			yesNo(res.FollowsYouBack),
			yesNo(res.UnfollowSuccess),
			res.Timestamp.Local().Format(time.RFC3339))
	}

	return nil
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
