package detector

import (
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

func concerningRatio(records []models.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	n := 0
	for _, r := range records {
		if r.HealthStatus == models.HealthConcerning {
			n++
		}
	}
	return float64(n) / float64(len(records))
}

// longestConcerningRun returns the longest chronological run of concerning records.
func longestConcerningRun(records []models.Record) int {
	longest, current := 0, 0
	for _, r := range records {
		if r.HealthStatus == models.HealthConcerning {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	return longest
}

func detectHealthDecline(w *Windows, t Thresholds) Finding {
	ratio := concerningRatio(w.Analysis)
	run := longestConcerningRun(w.Analysis)

	f := Finding{
		Type:        models.AnomalyHealthDecline,
		IsAnomalous: ratio > t.ConcerningRatio || run >= t.ConsecutiveConcerning,
		Severity:    models.SeverityLow,
		Confidence:  clampConfidence(ratio * 100),
		TriggerData: TriggerData{
			CurrentValue:  ratio,
			ExpectedValue: concerningRatio(w.Baseline),
			Threshold:     t.ConcerningRatio,
			Timeframe:     w.timeframe(),
		},
	}

	switch {
	case ratio > 0.7 || run >= 5:
		f.Severity = models.SeverityHigh
	case ratio > 0.5 || run >= t.ConsecutiveConcerning:
		f.Severity = models.SeverityMedium
	}

	if !f.IsAnomalous {
		f.Severity = models.SeverityLow
		f.Description = fmt.Sprintf("%.0f%% of recent records were concerning, within the normal range.", ratio*100)
		f.Recommendations = []string{"Continue regular monitoring"}
		return f
	}

	f.Description = fmt.Sprintf("%.0f%% of recent records were concerning (longest streak: %d in a row).", ratio*100, run)
	switch f.Severity {
	case models.SeverityHigh:
		f.Recommendations = []string{
			"Schedule a veterinary appointment as soon as possible",
			"Collect a fresh sample for the veterinarian if possible",
			"Note any other symptoms such as vomiting, lethargy or loss of appetite",
		}
	case models.SeverityMedium:
		f.Recommendations = []string{
			"Contact your veterinarian if the trend continues over the next few days",
			"Review recent diet changes",
			"Keep logging every event to track the trend",
		}
	default:
		f.Recommendations = []string{
			"Keep an eye on upcoming records",
			"Review recent diet changes",
		}
	}
	return f
}
