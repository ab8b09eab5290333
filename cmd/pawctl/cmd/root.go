// Package cmd contains the CLI commands for pawctl.
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/logger"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

var (
	// Used for flags
	dbPath  string
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pawctl",
	Short: "pawctl - pawwatch administration tool",
	Long: `pawctl operates directly on a pawwatch SQLite database.

It runs anomaly detection for a pet, manages alert rules, shows trigger
history and runs a local batch sweep that delivers in-app notifications only.

Examples:
  # Show the anomaly findings for a pet
  pawctl detect pet-123

  # Create the default rules for a user
  pawctl rules bootstrap user-42

  # Run a sweep and export the result
  pawctl sweep --export csv --export-to sweep.csv`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.Logger = logger.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
	// Run when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/pawwatch.db", "path to the pawwatch database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, plain)")
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintVerbose prints a message to stderr only if verbose mode is enabled.
func PrintVerbose(cmd *cobra.Command, format string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}

// openDatabase opens an existing database and applies pending migrations.
func openDatabase(path string) (*storage.SQLiteStorage, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", path)
	}

	store := storage.NewSQLiteStorage(path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// parseTimeFlag accepts YYYY-MM-DD or RFC3339. Empty yields the zero time.
func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t, nil
}

// createOutput opens path for writing, or returns stdout when path is empty.
func createOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create export file: %w", err)
	}
	return f, f.Close, nil
}
