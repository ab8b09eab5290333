// Package detector computes typed, scored anomaly findings for one pet by
// comparing a recent analysis window of records against a preceding
// baseline window.
package detector

import (
	"errors"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// ErrInvalidWindows is returned when the window configuration is unusable.
var ErrInvalidWindows = errors.New("invalid detection windows")

// maxConfidence caps the confidence of every finding.
const maxConfidence = 95.0

// TriggerData carries the numbers behind a finding.
type TriggerData struct {
	CurrentValue  float64 `json:"current_value"`
	ExpectedValue float64 `json:"expected_value"`
	Threshold     float64 `json:"threshold"`
	Timeframe     string  `json:"timeframe"`
}

// Finding is the output of one sub-detector.
type Finding struct {
	Type            models.AnomalyType `json:"type"`
	IsAnomalous     bool               `json:"is_anomalous"`
	Severity        models.Severity    `json:"severity"`
	Confidence      float64            `json:"confidence"`
	Description     string             `json:"description"`
	Recommendations []string           `json:"recommendations"`
	TriggerData     TriggerData        `json:"trigger_data"`
}

// Thresholds bundles the tunable detection limits.
type Thresholds struct {
	MinPerWeek             float64 `yaml:"min_per_week" json:"min_per_week"`
	MaxPerWeek             float64 `yaml:"max_per_week" json:"max_per_week"`
	ConcerningRatio        float64 `yaml:"concerning_ratio" json:"concerning_ratio"`
	ConsecutiveConcerning  int     `yaml:"consecutive_concerning" json:"consecutive_concerning"`
	ShapeVariationLimit    int     `yaml:"shape_variation_limit" json:"shape_variation_limit"`
	ConsistencyChangeRatio float64 `yaml:"consistency_change_ratio" json:"consistency_change_ratio"`
}

// DefaultThresholds returns the default detection limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinPerWeek:             3,
		MaxPerWeek:             21,
		ConcerningRatio:        0.4,
		ConsecutiveConcerning:  3,
		ShapeVariationLimit:    4,
		ConsistencyChangeRatio: 0.7,
	}
}

// Validate checks the thresholds for consistency.
func (t Thresholds) Validate() error {
	if t.MinPerWeek < 0 {
		return fmt.Errorf("min_per_week must not be negative")
	}
	if t.MinPerWeek >= t.MaxPerWeek {
		return fmt.Errorf("min_per_week (%.2f) must be below max_per_week (%.2f)", t.MinPerWeek, t.MaxPerWeek)
	}
	if t.ConcerningRatio <= 0 || t.ConcerningRatio > 1 {
		return fmt.Errorf("concerning_ratio must be within (0, 1]")
	}
	if t.ConsecutiveConcerning < 1 {
		return fmt.Errorf("consecutive_concerning must be positive")
	}
	if t.ShapeVariationLimit < 1 {
		return fmt.Errorf("shape_variation_limit must be positive")
	}
	if t.ConsistencyChangeRatio <= 0 || t.ConsistencyChangeRatio > 1 {
		return fmt.Errorf("consistency_change_ratio must be within (0, 1]")
	}
	return nil
}

// Options configures a Detector.
type Options struct {
	AnalysisWindowDays int
	BaselineWindowDays int
	Thresholds         Thresholds
}

// DefaultOptions returns the default detector options.
func DefaultOptions() Options {
	return Options{
		AnalysisWindowDays: 14,
		BaselineWindowDays: 30,
		Thresholds:         DefaultThresholds(),
	}
}

// Validate checks the window sizes and thresholds.
func (o Options) Validate() error {
	if o.AnalysisWindowDays <= 0 || o.BaselineWindowDays <= 0 {
		return fmt.Errorf("%w: window sizes must be positive", ErrInvalidWindows)
	}
	if o.AnalysisWindowDays > o.BaselineWindowDays {
		return fmt.Errorf("%w: analysis window (%d days) exceeds baseline window (%d days)",
			ErrInvalidWindows, o.AnalysisWindowDays, o.BaselineWindowDays)
	}
	if err := o.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}

// Windows holds the two record windows for one pet, oldest record first.
type Windows struct {
	PetID        string          `json:"pet_id"`
	Analysis     []models.Record `json:"analysis"`
	Baseline     []models.Record `json:"baseline"`
	AnalysisDays int             `json:"analysis_days"`
	BaselineDays int             `json:"baseline_days"`
}

func (w *Windows) timeframe() string {
	return fmt.Sprintf("%d days", w.AnalysisDays)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxConfidence {
		return maxConfidence
	}
	return v
}
