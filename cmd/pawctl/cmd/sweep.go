package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/batch"
	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

var (
	sweepWorkers  int
	sweepTimezone string
	sweepExport   string
	sweepExportTo string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one batch sweep against the local database",
	Long: `Evaluate every pet with an active rule and fire matching triggers.

Only in-app notifications are delivered. Email and push channels enabled on a
rule are recorded as not delivered.

Examples:
  pawctl sweep
  pawctl sweep --workers 4 --timezone Europe/Berlin
  pawctl sweep --export csv --export-to sweep.csv`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	defaults := batch.DefaultSweepOptions()
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", defaults.Workers, "number of concurrent evaluations")
	sweepCmd.Flags().StringVar(&sweepTimezone, "timezone", "UTC", "timezone defining the daily trigger cap")
	sweepCmd.Flags().StringVar(&sweepExport, "export", "", "export the summary (json, csv)")
	sweepCmd.Flags().StringVar(&sweepExportTo, "export-to", "", "export file path (default: stdout)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	var format batch.ExportFormat
	if sweepExport != "" {
		var ok bool
		if format, ok = batch.ParseExportFormat(sweepExport); !ok {
			return fmt.Errorf("invalid export format %q (use json or csv)", sweepExport)
		}
	}
	if sweepWorkers <= 0 {
		return fmt.Errorf("--workers must be positive")
	}

	loc, err := time.LoadLocation(sweepTimezone)
	if err != nil {
		return fmt.Errorf("invalid --timezone: %w", err)
	}

	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper, closeSweeper, err := newLocalSweeper(store, loc, sweepWorkers)
	if err != nil {
		return err
	}
	defer closeSweeper()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	PrintVerbose(cmd, "Sweeping with %d workers", sweepWorkers)

	summary, err := sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if format != "" {
		w, closeOut, err := createOutput(cmd, sweepExportTo)
		if err != nil {
			return err
		}
		if err := batch.NewExporter(format, w).ExportSummary(summary); err != nil {
			closeOut()
			return fmt.Errorf("export summary: %w", err)
		}
		if err := closeOut(); err != nil {
			return err
		}
		if sweepExportTo != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported sweep summary to %s\n", sweepExportTo)
		}
		return nil
	}

	return printSweepSummary(cmd.OutOrStdout(), summary)
}

// newLocalSweeper wires a sweeper over the SQLite store that delivers in-app
// notifications only.
func newLocalSweeper(store *storage.SQLiteStorage, loc *time.Location, workers int) (*batch.Sweeper, func() error, error) {
	det, err := detector.NewDetector(store.Records(), detector.DefaultOptions())
	if err != nil {
		return nil, nil, err
	}

	dispatcher := notifier.NewDispatcher()
	dispatcher.Register(notifier.NewInAppNotifier(store.Notifications()))

	engine := alerting.NewEngine(store.Rules(), det, dispatcher, &alerting.EngineOptions{
		Location: loc,
		Now:      time.Now,
	})

	opts := batch.DefaultSweepOptions()
	opts.Workers = workers
	return batch.NewSweeper(store.Rules(), store.Pets(), engine, opts), dispatcher.Close, nil
}

func printSweepSummary(w io.Writer, summary *batch.SweepSummary) error {
	if GetOutput() == "json" {
		return printJSON(w, summary)
	}

	fmt.Fprintf(w, "Sweep finished in %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  checked:   %d\n", summary.Checked)
	fmt.Fprintf(w, "  triggered: %d\n", summary.Triggered)
	fmt.Fprintf(w, "  skipped:   %d\n", summary.Skipped)
	fmt.Fprintf(w, "  errors:    %d\n", len(summary.Errors))
	if summary.Canceled {
		fmt.Fprintln(w, "  (canceled before all subjects were evaluated)")
	}

	if summary.Triggered > 0 {
		fmt.Fprintln(w)
		tw := newTable(w, "SUBJECT", "RULE", "TYPE", "SEVERITY", "CONFIDENCE", "IN-APP")
		for _, r := range summary.Results {
			for _, t := range r.Triggers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
					r.Subject.Key(), truncate(t.RuleName, 30), t.Finding.Type, t.Finding.Severity,
					t.Finding.Confidence, yesNo(t.Delivery.InApp))
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(summary.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range summary.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
	return nil
}
