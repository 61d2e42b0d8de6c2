package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/umccr/holmes-report/internal/db"
	"github.com/umccr/holmes-report/internal/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show previous grouping runs",
	Long: `Show the most recent grouping runs recorded in the run history store,
or the details of one run.

Requires HOLMES_HISTORY_URL.

Examples:
  holmes-report history
  holmes-report history --limit 5
  holmes-report history 3f0c6c2e-8d5e-4c71-b0a4-4f0f5c9d2e11`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.HistoryURL == "" {
		return errors.New("no run history configured: set HOLMES_HISTORY_URL")
	}

	ctx := cmd.Context()
	client, err := db.NewClient(ctx, historyConfig(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(ctx) }()

	if len(args) == 1 {
		run, err := client.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		printRun(*run)
		return nil
	}

	runs, err := client.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	loc := cfg.Location()
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.In(loc).Format(time.DateTime),
			r.BatchDay,
			string(r.Status),
			strconv.Itoa(r.Fingerprints),
			strconv.Itoa(r.Unmatched),
			strconv.Itoa(r.Expected),
			strconv.Itoa(r.Reportable),
			r.Duration().Round(time.Second).String(),
			r.RunID,
		})
	}
	fmt.Println(renderTable(
		[]string{"STARTED", "BATCH", "STATUS", "CHECKED", "UNMATCHED", "EXPECTED", "GROUPS", "TOOK", "RUN"},
		rows, 3, 4, 5, 6, 7,
	))
	return nil
}

func printRun(r models.Run) {
	loc := cfg.Location()
	fmt.Printf("Run:          %s\n", r.RunID)
	fmt.Printf("Status:       %s\n", r.Status)
	fmt.Printf("Bucket:       %s\n", r.Bucket)
	fmt.Printf("Batch day:    %s\n", r.BatchDay)
	fmt.Printf("Started:      %s\n", r.StartedAt.In(loc).Format(time.DateTime))
	fmt.Printf("Took:         %s\n", r.Duration().Round(time.Second))
	fmt.Printf("Concurrency:  %d\n", r.Concurrency)
	fmt.Printf("Relatedness:  %g\n", r.Relatedness)
	fmt.Printf("Checked:      %d\n", r.Fingerprints)
	fmt.Printf("Controls:     %d\n", r.Controls)
	fmt.Printf("Unmatched:    %d\n", r.Unmatched)
	fmt.Printf("Expected:     %d\n", r.Expected)
	fmt.Printf("Groups:       %d\n", r.Reportable)
	if r.Error != "" {
		fmt.Printf("Failure:      %s\n", r.Error)
	}
}
