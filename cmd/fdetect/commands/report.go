package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/immdipu/follower-detector/internal/report"
)

var (
	// reportHTML switches the report output to a standalone HTML page.
	reportHTML bool

	// reportOut is the output file; empty writes to stdout.
	reportOut string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a run summary",
	Long: `Report renders the recorded results and any unreverted follows as
a Markdown summary, or as a standalone HTML page with --html.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(
		&reportHTML, "html", false,
		"Render the report as HTML",
	)
	reportCmd.Flags().StringVarP(
		&reportOut, "out", "o", "",
		"Write the report to a file instead of stdout",
	)
}

func runReport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.DetectionResults(cmd.Context())
	if err != nil {
		return err
	}
	failed, err := store.FailedUnfollows(cmd.Context())
	if err != nil {
		return err
	}

	out := []byte(report.Markdown(results, failed))
	if reportHTML {
		out, err = report.HTML(string(out))
		if err != nil {
			return err
		}
	}

	if reportOut == "" {
		fmt.Print(string(out))
		return nil
	}

	return os.WriteFile(reportOut, out, 0o644)
}
