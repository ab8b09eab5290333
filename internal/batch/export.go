package batch

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// ExportFormat defines the output format for exports.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat parses a string to ExportFormat.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch s {
	case "json":
		return ExportJSON, true
	case "csv":
		return ExportCSV, true
	default:
		return "", false
	}
}

// Exporter writes sweep summaries in various formats.
type Exporter struct {
	format ExportFormat
	writer io.Writer
}

// NewExporter creates an exporter for the given format.
func NewExporter(format ExportFormat, w io.Writer) *Exporter {
	return &Exporter{
		format: format,
		writer: w,
	}
}

// ExportSummary writes the sweep summary in the configured format.
func (e *Exporter) ExportSummary(summary *SweepSummary) error {
	switch e.format {
	case ExportCSV:
		return e.exportSummaryCSV(summary)
	default:
		return e.exportSummaryJSON(summary)
	}
}

func (e *Exporter) exportSummaryJSON(summary *SweepSummary) error {
	encoder := json.NewEncoder(e.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

func (e *Exporter) exportSummaryCSV(summary *SweepSummary) error {
	w := csv.NewWriter(e.writer)
	defer w.Flush()

	// Summary header
	w.Write([]string{"# Summary"})
	w.Write([]string{"start_time", summary.StartTime.Format(time.RFC3339)})
	w.Write([]string{"checked", strconv.Itoa(summary.Checked)})
	w.Write([]string{"triggered", strconv.Itoa(summary.Triggered)})
	w.Write([]string{"skipped", strconv.Itoa(summary.Skipped)})
	w.Write([]string{"errors", strconv.Itoa(len(summary.Errors))})
	w.Write([]string{"duration_ms", strconv.FormatInt(summary.Duration.Milliseconds(), 10)})
	w.Write([]string{})

	// One row per fired trigger
	w.Write([]string{"# Triggers"})
	w.Write([]string{"user_id", "pet_id", "rule_id", "rule_name", "anomaly_type", "severity", "confidence",
		"in_app", "email", "push", "triggered_at"})
	for _, r := range summary.Results {
		for _, t := range r.Triggers {
			w.Write([]string{
				r.Subject.UserID,
				r.Subject.PetID,
				t.RuleID,
				t.RuleName,
				string(t.Finding.Type),
				string(t.Finding.Severity),
				strconv.FormatFloat(t.Finding.Confidence, 'f', 2, 64),
				strconv.FormatBool(t.Delivery.InApp),
				strconv.FormatBool(t.Delivery.Email),
				strconv.FormatBool(t.Delivery.Push),
				t.TriggeredAt.Format(time.RFC3339),
			})
		}
	}
	w.Write([]string{})

	// Failed subjects
	w.Write([]string{"# Errors"})
	w.Write([]string{"user_id", "pet_id", "message"})
	for _, se := range summary.Errors {
		w.Write([]string{se.Subject.UserID, se.Subject.PetID, se.Message})
	}

	return w.Error()
}
