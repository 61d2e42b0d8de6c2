package cli

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/umccr/holmes-report/internal/cloud"
	"github.com/umccr/holmes-report/internal/metrics"
	"github.com/umccr/holmes-report/internal/models"
	"github.com/umccr/holmes-report/internal/service"
)

var (
	listLong  bool
	listBatch bool
	listDays  int
)

var listFingerprintsCmd = &cobra.Command{
	Use:   "list-fingerprints",
	Short: "List fingerprints in the fingerprint bucket",
	Long: `List the source URL of every fingerprint computed against the configured
sites checksum.

With --batch only the fingerprints a grouping run would check are shown,
using the same batch day rules as the grouping command.

Examples:
  holmes-report list-fingerprints
  holmes-report list-fingerprints --long
  holmes-report list-fingerprints --batch --days 2`,
	RunE: runListFingerprints,
}

func init() {
	listFingerprintsCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show a table with modification times")
	listFingerprintsCmd.Flags().BoolVar(&listBatch, "batch", false, "only show the batch a grouping run would check")
	listFingerprintsCmd.Flags().IntVar(&listDays, "days", 0, "with --batch, use the batch from this many days ago")
}

func runListFingerprints(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	clients, err := cloud.LoadClients(ctx, cfg.AWSRegion)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector()
	enumerator, err := buildEnumerator(clients, collector)
	if err != nil {
		return err
	}

	var fps []models.Fingerprint
	for fp, err := range enumerator.All(ctx) {
		if err != nil {
			return err
		}
		fps = append(fps, fp)
	}
	logger.Debug("listed fingerprints", "count", len(fps), "metrics", collector.Snapshot())

	if listBatch {
		batch := service.SelectBatch(fps, listDays, time.Now(), cfg.Location(), logger)
		keep := make(map[string]bool, len(batch.URLs))
		for _, u := range batch.URLs {
			keep[u] = true
		}
		filtered := fps[:0]
		for _, fp := range fps {
			if keep[fp.URL] {
				filtered = append(filtered, fp)
			}
		}
		fps = filtered
	}

	if len(fps) == 0 {
		fmt.Println("No fingerprints found.")
		return nil
	}

	if !listLong {
		for _, fp := range fps {
			fmt.Println(fp.URL)
		}
		return nil
	}

	loc := cfg.Location()
	rows := make([][]string, 0, len(fps))
	for _, fp := range fps {
		rows = append(rows, []string{fp.URL, fp.LastModified.In(loc).Format(time.DateTime)})
	}
	fmt.Println(renderTable([]string{"URL", "LAST MODIFIED"}, rows))
	fmt.Printf("\n%d fingerprints\n", len(fps))
	return nil
}
