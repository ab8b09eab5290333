package detector

import (
	"fmt"
	"math"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// defaultBaselineRate is assumed when the baseline window has no records.
const defaultBaselineRate = 7.0

func weeklyRate(count, days int) float64 {
	return float64(count) / float64(days) * 7
}

func detectFrequency(w *Windows, t Thresholds) Finding {
	currentRate := weeklyRate(len(w.Analysis), w.AnalysisDays)
	baselineRate := defaultBaselineRate
	if len(w.Baseline) > 0 {
		baselineRate = weeklyRate(len(w.Baseline), w.BaselineDays)
	}

	tooLow := currentRate < t.MinPerWeek
	tooHigh := currentRate > t.MaxPerWeek

	f := Finding{
		Type:        models.AnomalyFrequency,
		IsAnomalous: tooLow || tooHigh,
		Severity:    models.SeverityLow,
		Confidence:  clampConfidence(math.Abs(currentRate-baselineRate) / baselineRate * 100),
		TriggerData: TriggerData{
			CurrentValue:  currentRate,
			ExpectedValue: baselineRate,
			Threshold:     t.MinPerWeek,
			Timeframe:     w.timeframe(),
		},
	}

	switch {
	case tooLow:
		f.Severity = models.SeverityMedium
		if currentRate < 0.5*t.MinPerWeek {
			f.Severity = models.SeverityHigh
		}
		f.Description = fmt.Sprintf("Activity frequency dropped to %.1f per week, below the expected minimum of %.0f (baseline %.1f per week).",
			currentRate, t.MinPerWeek, baselineRate)
		f.Recommendations = []string{
			"Monitor food and water intake closely",
			"Check for signs of discomfort or straining",
			"Consult your veterinarian if the low frequency continues for more than 2-3 days",
		}
	case tooHigh:
		f.Severity = models.SeverityMedium
		if currentRate > 1.5*t.MaxPerWeek {
			f.Severity = models.SeverityHigh
		}
		f.TriggerData.Threshold = t.MaxPerWeek
		f.Description = fmt.Sprintf("Activity frequency rose to %.1f per week, above the expected maximum of %.0f (baseline %.1f per week).",
			currentRate, t.MaxPerWeek, baselineRate)
		f.Recommendations = []string{
			"Review recent diet changes or new treats",
			"Ensure fresh water is always available to prevent dehydration",
			"Consult your veterinarian if the increased frequency persists",
		}
	default:
		f.Description = fmt.Sprintf("Activity frequency of %.1f per week is within the normal range.", currentRate)
		f.Recommendations = []string{"Continue regular monitoring"}
	}

	return f
}
