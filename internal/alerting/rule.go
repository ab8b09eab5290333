// Package alerting matches anomaly findings against user alert rules and
// fires rate-limited triggers through the notification sink.
package alerting

import (
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// UsageWindow is the rolling window counted against MaxPerWeek.
const UsageWindow = 7 * 24 * time.Hour

// Usage is the number of times a rule fired in the current day and week.
type Usage struct {
	// Today counts triggers since local midnight.
	Today int
	// ThisWeek counts triggers in the rolling seven days ending now.
	ThisWeek int
}

// Matches reports whether a finding satisfies the rule's trigger filter.
// It does not look at the finding's anomalous flag.
func Matches(rule *models.AlertRule, f detector.Finding) bool {
	if !containsType(rule.Triggers.AnomalyTypes, f.Type) {
		return false
	}
	if !containsSeverity(rule.Triggers.SeverityLevels, f.Severity) {
		return false
	}
	return f.Confidence >= rule.Triggers.MinimumConfidence
}

// CanFire reports whether the rule may fire at now given its usage.
func CanFire(rule *models.AlertRule, usage Usage, now time.Time) bool {
	if !rule.IsActive {
		return false
	}
	if last := rule.Stats.LastTriggered; last != nil && now.Sub(*last) < rule.Frequency.Cooldown() {
		return false
	}
	if usage.Today >= rule.Frequency.MaxPerDay {
		return false
	}
	if usage.ThisWeek >= rule.Frequency.MaxPerWeek {
		return false
	}
	return true
}

// EffectiveThresholds merges the rule's custom overrides into base.
func EffectiveThresholds(base detector.Thresholds, custom *models.CustomConditions) detector.Thresholds {
	if custom == nil {
		return base
	}
	t := base
	if ft := custom.FrequencyThreshold; ft != nil {
		t.MinPerWeek = ft.MinPerWeek
		t.MaxPerWeek = ft.MaxPerWeek
	}
	if ht := custom.HealthDeclineThreshold; ht != nil {
		t.ConcerningRatio = ht.ConcerningRatio
		t.ConsecutiveConcerning = ht.ConsecutiveConcerning
	}
	if pt := custom.PatternChangeThreshold; pt != nil {
		t.ShapeVariationLimit = pt.ShapeVariationLimit
		t.ConsistencyChangeRatio = pt.ConsistencyChangeRatio
	}
	return t
}

// startOfDay returns local midnight of now in loc.
func startOfDay(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func containsType(types []models.AnomalyType, t models.AnomalyType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsSeverity(levels []models.Severity, s models.Severity) bool {
	for _, v := range levels {
		if v == s {
			return true
		}
	}
	return false
}
