package detector

import (
	"fmt"
	"math"
	"sort"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// shapeDistribution returns the share of each shape code, indexed by code.
func shapeDistribution(records []models.Record) map[int]float64 {
	dist := make(map[int]float64)
	if len(records) == 0 {
		return dist
	}
	for _, r := range records {
		dist[r.ShapeCode]++
	}
	for code := range dist {
		dist[code] /= float64(len(records))
	}
	return dist
}

// similarity computes the weighted overlap of two distributions. Codes are
// visited in ascending order so the floating point sum is deterministic.
func similarity(a, b map[int]float64) float64 {
	codes := make(map[int]struct{}, len(a)+len(b))
	for code := range a {
		codes[code] = struct{}{}
	}
	for code := range b {
		codes[code] = struct{}{}
	}

	var sum, weight float64
	for _, code := range sortedCodes(codes) {
		ra, rb := a[code], b[code]
		w := math.Max(ra, rb)
		sum += (1 - math.Abs(ra-rb)) * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func sortedCodes(codes map[int]struct{}) []int {
	out := make([]int, 0, len(codes))
	for code := range codes {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

func detectPatternChange(w *Windows, t Thresholds) Finding {
	if len(w.Baseline) == 0 {
		return Finding{
			Type:            models.AnomalyPatternChange,
			IsAnomalous:     false,
			Severity:        models.SeverityLow,
			Confidence:      0,
			Description:     "Insufficient baseline data to compare shape patterns.",
			Recommendations: []string{"Keep logging records to build a baseline"},
			TriggerData: TriggerData{
				Threshold: 1 - t.ConsistencyChangeRatio,
				Timeframe: w.timeframe(),
			},
		}
	}

	current := shapeDistribution(w.Analysis)
	baseline := shapeDistribution(w.Baseline)
	variation := len(current)
	sim := similarity(current, baseline)
	minSimilarity := 1 - t.ConsistencyChangeRatio

	f := Finding{
		Type:        models.AnomalyPatternChange,
		IsAnomalous: variation > t.ShapeVariationLimit || sim < minSimilarity,
		Severity:    models.SeverityLow,
		Confidence:  clampConfidence((1 - sim) * 100),
		TriggerData: TriggerData{
			CurrentValue:  sim,
			ExpectedValue: 1,
			Threshold:     minSimilarity,
			Timeframe:     w.timeframe(),
		},
	}

	if !f.IsAnomalous {
		f.Description = fmt.Sprintf("Shape pattern is consistent with the baseline (similarity %.0f%%).", sim*100)
		f.Recommendations = []string{"Continue regular monitoring"}
		return f
	}

	f.Severity = models.SeverityMedium
	if variation > 5 || sim < 0.3 {
		f.Severity = models.SeverityHigh
	}
	f.Description = fmt.Sprintf("Shape pattern changed from the baseline: %d distinct shapes, %.0f%% similarity.",
		variation, sim*100)
	f.Recommendations = []string{
		"Review diet, treats and any recent food transitions",
		"Look for stress factors such as travel, new pets or schedule changes",
		"Consult your veterinarian if the change persists for more than a week",
	}
	return f
}
