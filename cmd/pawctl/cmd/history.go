package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history <rule-id>",
	Short: "Show the trigger history of a rule",
	Long: `Show when a rule fired, newest first, and which channels delivered.

Examples:
  pawctl history 3f1c9a2e-...
  pawctl history 3f1c9a2e-... --limit 10 --offset 20 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "number of entries to skip")
}

// historyPage is the JSON form of a history listing.
type historyPage struct {
	RuleID  string                   `json:"rule_id"`
	Total   int64                    `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
	Entries []*models.TriggerHistory `json:"entries"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	if historyOffset < 0 {
		return fmt.Errorf("--offset must not be negative")
	}

	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, total, err := store.TriggerHistory().ListByRule(context.Background(), args[0], historyLimit, historyOffset)
	if err != nil {
		return fmt.Errorf("list trigger history: %w", err)
	}
	if entries == nil {
		entries = []*models.TriggerHistory{}
	}

	return printHistory(cmd.OutOrStdout(), historyPage{
		RuleID:  args[0],
		Total:   total,
		Limit:   historyLimit,
		Offset:  historyOffset,
		Entries: entries,
	})
}

func printHistory(w io.Writer, page historyPage) error {
	switch GetOutput() {
	case "json":
		return printJSON(w, page)
	case "plain":
		for _, h := range page.Entries {
			fmt.Fprintf(w, "%s %s %s %s %.1f\n",
				h.TriggeredAt.UTC().Format("2006-01-02T15:04:05Z"), h.PetID, h.AnomalyType, h.Severity, h.Confidence)
		}
		return nil
	}

	if len(page.Entries) == 0 {
		fmt.Fprintf(w, "No triggers recorded for rule %s.\n", page.RuleID)
		return nil
	}

	tw := newTable(w, "TRIGGERED", "PET", "TYPE", "SEVERITY", "CONFIDENCE", "IN-APP", "EMAIL", "PUSH")
	for _, h := range page.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\t%s\t%s\n",
			h.TriggeredAt.Local().Format("2006-01-02 15:04:05"), h.PetID, h.AnomalyType, h.Severity,
			h.Confidence, yesNo(h.Delivery.InApp), yesNo(h.Delivery.Email), yesNo(h.Delivery.Push))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	shown := page.Offset + len(page.Entries)
	fmt.Fprintf(w, "\nShowing %d-%d of %d\n", page.Offset+1, shown, page.Total)
	return nil
}
