package detector

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// RecordReader supplies records for a pet over a time range.
// Records with start <= timestamp < end are returned; a zero end is open-ended.
type RecordReader interface {
	Fetch(ctx context.Context, petID string, start, end time.Time) ([]models.Record, error)
}

// Detector reads record windows and runs the sub-detectors over them.
// It holds no per-call state and is safe for concurrent use.
type Detector struct {
	reader RecordReader
	opts   atomic.Pointer[Options]
}

// NewDetector creates a detector reading from reader.
func NewDetector(reader RecordReader, opts Options) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{reader: reader}
	d.opts.Store(&opts)
	return d, nil
}

// Options returns the current options.
func (d *Detector) Options() Options {
	return *d.opts.Load()
}

// SetOptions replaces the window sizes and thresholds. Evaluations already
// running keep the options they started with.
func (d *Detector) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	d.opts.Store(&opts)
	return nil
}

// DetectAnomalies fetches the windows ending at now and analyzes them with
// the configured thresholds.
func (d *Detector) DetectAnomalies(ctx context.Context, petID string, now time.Time) ([]Finding, error) {
	opts := d.Options()
	w, err := d.fetch(ctx, petID, now, opts)
	if err != nil {
		return nil, err
	}
	return Analyze(w, opts.Thresholds), nil
}

// FetchWindows reads the analysis window [now-analysis, now] and the
// baseline window [now-baseline, now-analysis).
func (d *Detector) FetchWindows(ctx context.Context, petID string, now time.Time) (*Windows, error) {
	return d.fetch(ctx, petID, now, d.Options())
}

// FetchWindowsWith reads windows of the given sizes ending at now.
func (d *Detector) FetchWindowsWith(ctx context.Context, petID string, now time.Time, analysisDays, baselineDays int) (*Windows, error) {
	opts := d.Options()
	opts.AnalysisWindowDays = analysisDays
	opts.BaselineWindowDays = baselineDays
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return d.fetch(ctx, petID, now, opts)
}

func (d *Detector) fetch(ctx context.Context, petID string, now time.Time, opts Options) (*Windows, error) {
	analysisStart := now.AddDate(0, 0, -opts.AnalysisWindowDays)
	baselineStart := now.AddDate(0, 0, -opts.BaselineWindowDays)

	// End bounds are exclusive; a record stamped exactly at now belongs to
	// the analysis window.
	analysis, err := d.reader.Fetch(ctx, petID, analysisStart, now.Add(time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("fetch analysis window for pet %s: %w", petID, err)
	}

	var baseline []models.Record
	if len(analysis) > 0 {
		baseline, err = d.reader.Fetch(ctx, petID, baselineStart, analysisStart)
		if err != nil {
			return nil, fmt.Errorf("fetch baseline window for pet %s: %w", petID, err)
		}
	}

	sortRecords(analysis)
	sortRecords(baseline)

	return &Windows{
		PetID:        petID,
		Analysis:     analysis,
		Baseline:     baseline,
		AnalysisDays: opts.AnalysisWindowDays,
		BaselineDays: opts.BaselineWindowDays,
	}, nil
}

func sortRecords(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

// Analyze runs the four sub-detectors over w in fixed order: frequency,
// health decline, pattern change, consistency. It returns nil when the
// analysis window is empty. Analyze is pure.
func Analyze(w *Windows, t Thresholds) []Finding {
	if w == nil || len(w.Analysis) == 0 {
		return nil
	}
	return []Finding{
		detectFrequency(w, t),
		detectHealthDecline(w, t),
		detectPatternChange(w, t),
		detectConsistency(w),
	}
}

// Anomalous filters findings down to the anomalous ones, keeping order.
func Anomalous(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.IsAnomalous {
			out = append(out, f)
		}
	}
	return out
}
