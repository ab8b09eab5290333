package detector

import (
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

const (
	// minConsistencyRecords is the smallest analysis window the consistency check accepts.
	minConsistencyRecords = 3
	// shapeJump is the shape code delta above which consecutive records count as a change.
	shapeJump = 2
	// inconsistencyLimit and inconsistencyHigh bound the change ratio.
	inconsistencyLimit = 0.6
	inconsistencyHigh  = 0.8
)

func detectConsistency(w *Windows) Finding {
	n := len(w.Analysis)
	if n < minConsistencyRecords {
		return Finding{
			Type:            models.AnomalyConsistencyChange,
			IsAnomalous:     false,
			Severity:        models.SeverityLow,
			Confidence:      0,
			Description:     "Insufficient data to evaluate consistency.",
			Recommendations: []string{"Keep logging records to enable consistency tracking"},
			TriggerData: TriggerData{
				Threshold: inconsistencyLimit,
				Timeframe: w.timeframe(),
			},
		}
	}

	changes := 0
	for i := 1; i < n; i++ {
		delta := w.Analysis[i].ShapeCode - w.Analysis[i-1].ShapeCode
		if delta < 0 {
			delta = -delta
		}
		if delta > shapeJump {
			changes++
		}
	}
	ratio := float64(changes) / float64(n-1)

	f := Finding{
		Type:        models.AnomalyConsistencyChange,
		IsAnomalous: ratio > inconsistencyLimit,
		Severity:    models.SeverityLow,
		Confidence:  clampConfidence(ratio * 100),
		TriggerData: TriggerData{
			CurrentValue:  ratio,
			ExpectedValue: 0,
			Threshold:     inconsistencyLimit,
			Timeframe:     w.timeframe(),
		},
	}

	if !f.IsAnomalous {
		f.Description = fmt.Sprintf("Consecutive records are consistent (%d of %d transitions were large jumps).", changes, n-1)
		f.Recommendations = []string{"Continue regular monitoring"}
		return f
	}

	f.Severity = models.SeverityMedium
	if ratio > inconsistencyHigh {
		f.Severity = models.SeverityHigh
	}
	f.Description = fmt.Sprintf("Records are highly inconsistent: %d of %d transitions were large shape changes.", changes, n-1)
	f.Recommendations = []string{
		"Keep meal times and portions consistent",
		"Avoid sudden diet changes and limit table scraps",
		"Consult your veterinarian if the inconsistency continues",
	}
	return f
}
