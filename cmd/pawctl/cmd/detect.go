package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/detector"
)

var (
	detectAt           string
	detectAnalysisDays int
	detectBaselineDays int
	detectAnomalous    bool
)

var detectCmd = &cobra.Command{
	Use:   "detect <pet-id>",
	Short: "Run anomaly detection for a pet",
	Long: `Run all anomaly detectors for a pet against the records in the database.

The analysis window ends at --at (default: now) and is compared to the
baseline window that precedes it.

Examples:
  # Detect with default windows
  pawctl detect pet-123

  # Only anomalous findings, as JSON
  pawctl detect pet-123 --anomalous -o json

  # Re-run detection as of a past date with a one week window
  pawctl detect pet-123 --at 2026-03-01 --analysis-days 7`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	defaults := detector.DefaultOptions()
	detectCmd.Flags().StringVar(&detectAt, "at", "", "end of the analysis window (YYYY-MM-DD or RFC3339)")
	detectCmd.Flags().IntVar(&detectAnalysisDays, "analysis-days", defaults.AnalysisWindowDays, "analysis window in days")
	detectCmd.Flags().IntVar(&detectBaselineDays, "baseline-days", defaults.BaselineWindowDays, "baseline window in days")
	detectCmd.Flags().BoolVar(&detectAnomalous, "anomalous", false, "only show anomalous findings")
}

func runDetect(cmd *cobra.Command, args []string) error {
	petID := args[0]

	at, err := parseTimeFlag(detectAt)
	if err != nil {
		return fmt.Errorf("invalid --at: %w", err)
	}
	if at.IsZero() {
		at = time.Now()
	}

	opts := detector.DefaultOptions()
	opts.AnalysisWindowDays = detectAnalysisDays
	opts.BaselineWindowDays = detectBaselineDays

	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	det, err := detector.NewDetector(store.Records(), opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	PrintVerbose(cmd, "Detecting anomalies for %s at %s (%d/%d days)",
		petID, at.UTC().Format(time.RFC3339), opts.AnalysisWindowDays, opts.BaselineWindowDays)

	findings, err := det.DetectAnomalies(ctx, petID, at)
	if err != nil {
		return fmt.Errorf("detect anomalies: %w", err)
	}
	if detectAnomalous {
		findings = detector.Anomalous(findings)
	}
	if findings == nil {
		findings = []detector.Finding{}
	}

	return printFindings(cmd.OutOrStdout(), petID, findings)
}

func printFindings(w io.Writer, petID string, findings []detector.Finding) error {
	switch GetOutput() {
	case "json":
		return printJSON(w, findings)
	case "plain":
		for _, f := range findings {
			fmt.Fprintf(w, "%s %s %.1f %t %s\n", f.Type, f.Severity, f.Confidence, f.IsAnomalous, f.Description)
		}
		return nil
	}

	if len(findings) == 0 {
		fmt.Fprintf(w, "No findings for %s.\n", petID)
		return nil
	}

	tw := newTable(w, "TYPE", "ANOMALOUS", "SEVERITY", "CONFIDENCE", "CURRENT", "EXPECTED", "DESCRIPTION")
	for _, f := range findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.2f\t%.2f\t%s\n",
			f.Type, yesNo(f.IsAnomalous), f.Severity, f.Confidence,
			f.TriggerData.CurrentValue, f.TriggerData.ExpectedValue, truncate(f.Description, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range findings {
		if !f.IsAnomalous || len(f.Recommendations) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s recommendations:\n  - %s\n", f.Type, strings.Join(f.Recommendations, "\n  - "))
	}
	return nil
}
