package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List follows that could not be reverted",
	Long: `Failed lists users the engine followed but could not unfollow.
These accounts are still followed and need manual cleanup.`,
	RunE: runFailed,
}

func runFailed(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.FailedUnfollows(cmd.Context())
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No failed unfollows. All probe follows were reverted.")
		return nil
	}

	fmt.Printf("%-24s %-40s %s\n", "USER", "REASON", "WHEN")
	for _, rec := range records {
		fmt.Printf("%-24s %-40s %s\n",
			rec.UserID, rec.Reason,
			rec.Timestamp.Local().Format(time.RFC3339))
	}

	return nil
}
