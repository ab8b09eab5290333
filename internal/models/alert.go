package models

import (
	"fmt"
	"time"
)

// AnomalyType identifies the detector that produced a finding.
type AnomalyType string

const (
	AnomalyFrequency         AnomalyType = "frequency"
	AnomalyHealthDecline     AnomalyType = "health_decline"
	AnomalyPatternChange     AnomalyType = "pattern_change"
	AnomalyConsistencyChange AnomalyType = "consistency_change"
)

// AnomalyTypes lists all anomaly types in detector execution order.
var AnomalyTypes = []AnomalyType{
	AnomalyFrequency,
	AnomalyHealthDecline,
	AnomalyPatternChange,
	AnomalyConsistencyChange,
}

// Valid reports whether t is a known anomaly type.
func (t AnomalyType) Valid() bool {
	switch t {
	case AnomalyFrequency, AnomalyHealthDecline, AnomalyPatternChange, AnomalyConsistencyChange:
		return true
	default:
		return false
	}
}

// ParseAnomalyType converts a string to AnomalyType.
func ParseAnomalyType(s string) (AnomalyType, error) {
	t := AnomalyType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown anomaly type %q", s)
	}
	return t, nil
}

// Severity represents the magnitude of a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "low", "LOW":
		return SeverityLow
	case "medium", "MEDIUM":
		return SeverityMedium
	case "high", "HIGH":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Triggers defines which findings a rule accepts.
type Triggers struct {
	AnomalyTypes      []AnomalyType `json:"anomaly_types" yaml:"anomaly_types"`
	SeverityLevels    []Severity    `json:"severity_levels" yaml:"severity_levels"`
	MinimumConfidence float64       `json:"minimum_confidence" yaml:"minimum_confidence"`
}

// NotificationSettings toggles delivery channels for a rule.
type NotificationSettings struct {
	InApp bool `json:"in_app" yaml:"in_app"`
	Email bool `json:"email" yaml:"email"`
	Push  bool `json:"push" yaml:"push"`
}

// Frequency holds the rate-limiting configuration of a rule.
type Frequency struct {
	MaxPerDay     int     `json:"max_per_day" yaml:"max_per_day"`
	MaxPerWeek    int     `json:"max_per_week" yaml:"max_per_week"`
	CooldownHours float64 `json:"cooldown_hours" yaml:"cooldown_hours"`
}

// MaxCooldownHours caps a rule's cooldown at one year.
const MaxCooldownHours = 8760

// Cooldown returns the cooldown as a duration, saturated at MaxCooldownHours.
func (f Frequency) Cooldown() time.Duration {
	h := f.CooldownHours
	switch {
	case h > MaxCooldownHours:
		h = MaxCooldownHours
	case !(h > 0):
		return 0
	}
	return time.Duration(h * float64(time.Hour))
}

// FrequencyThreshold overrides the weekly rate bounds.
type FrequencyThreshold struct {
	MinPerWeek float64 `json:"min_per_week" yaml:"min_per_week"`
	MaxPerWeek float64 `json:"max_per_week" yaml:"max_per_week"`
}

// HealthDeclineThreshold overrides the health decline bounds.
type HealthDeclineThreshold struct {
	ConcerningRatio       float64 `json:"concerning_ratio" yaml:"concerning_ratio"`
	ConsecutiveConcerning int     `json:"consecutive_concerning" yaml:"consecutive_concerning"`
}

// PatternChangeThreshold overrides the pattern change bounds.
type PatternChangeThreshold struct {
	ShapeVariationLimit    int     `json:"shape_variation_limit" yaml:"shape_variation_limit"`
	ConsistencyChangeRatio float64 `json:"consistency_change_ratio" yaml:"consistency_change_ratio"`
}

// CustomConditions holds optional per-rule threshold overrides.
type CustomConditions struct {
	FrequencyThreshold     *FrequencyThreshold     `json:"frequency_threshold,omitempty" yaml:"frequency_threshold,omitempty"`
	HealthDeclineThreshold *HealthDeclineThreshold `json:"health_decline_threshold,omitempty" yaml:"health_decline_threshold,omitempty"`
	PatternChangeThreshold *PatternChangeThreshold `json:"pattern_change_threshold,omitempty" yaml:"pattern_change_threshold,omitempty"`
	// Expression is an optional boolean expression evaluated against the finding.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// HasOverrides reports whether any detector threshold is overridden.
func (c *CustomConditions) HasOverrides() bool {
	if c == nil {
		return false
	}
	return c.FrequencyThreshold != nil || c.HealthDeclineThreshold != nil || c.PatternChangeThreshold != nil
}

// RuleStats tracks how often a rule fired.
type RuleStats struct {
	TotalTriggered         int64      `json:"total_triggered"`
	LastTriggered          *time.Time `json:"last_triggered,omitempty"`
	TotalNotificationsSent int64      `json:"total_notifications_sent"`
}

// AlertRule is a user-authored trigger configuration.
type AlertRule struct {
	ID     string `json:"id" yaml:"id,omitempty"`
	UserID string `json:"user_id" yaml:"user_id"`
	// PetID scopes the rule to one pet. Empty applies to all of the user's pets.
	PetID            string               `json:"pet_id,omitempty" yaml:"pet_id,omitempty"`
	Name             string               `json:"name" yaml:"name"`
	IsActive         bool                 `json:"is_active" yaml:"is_active"`
	Triggers         Triggers             `json:"triggers" yaml:"triggers"`
	Notifications    NotificationSettings `json:"notifications" yaml:"notifications"`
	Frequency        Frequency            `json:"frequency" yaml:"frequency"`
	CustomConditions *CustomConditions    `json:"custom_conditions,omitempty" yaml:"custom_conditions,omitempty"`
	Stats            RuleStats            `json:"stats" yaml:"-"`
	CreatedAt        time.Time            `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time            `json:"updated_at" yaml:"-"`
}

// NewAlertRule creates a new active AlertRule with initialized timestamps.
func NewAlertRule(userID, name string) *AlertRule {
	now := time.Now()
	return &AlertRule{
		UserID:   userID,
		Name:     name,
		IsActive: true,
		Notifications: NotificationSettings{
			InApp: true,
		},
		Frequency: Frequency{
			MaxPerDay:     1,
			MaxPerWeek:    3,
			CooldownHours: 24,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the rule configuration.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.UserID == "" {
		return fmt.Errorf("user id is required for rule %q", r.Name)
	}

	if len(r.Triggers.AnomalyTypes) == 0 {
		return fmt.Errorf("at least one anomaly type is required for rule %q", r.Name)
	}
	for _, t := range r.Triggers.AnomalyTypes {
		if !t.Valid() {
			return fmt.Errorf("invalid anomaly type %q for rule %q", t, r.Name)
		}
	}
	if len(r.Triggers.SeverityLevels) == 0 {
		return fmt.Errorf("at least one severity level is required for rule %q", r.Name)
	}
	for _, s := range r.Triggers.SeverityLevels {
		if !s.Valid() {
			return fmt.Errorf("invalid severity %q for rule %q", s, r.Name)
		}
	}
	if r.Triggers.MinimumConfidence < 0 || r.Triggers.MinimumConfidence > 100 {
		return fmt.Errorf("minimum confidence must be within [0, 100] for rule %q", r.Name)
	}

	if r.Frequency.MaxPerDay < 1 {
		return fmt.Errorf("max per day must be positive for rule %q", r.Name)
	}
	if r.Frequency.MaxPerDay > r.Frequency.MaxPerWeek {
		return fmt.Errorf("max per day (%d) exceeds max per week (%d) for rule %q",
			r.Frequency.MaxPerDay, r.Frequency.MaxPerWeek, r.Name)
	}
	if !(r.Frequency.CooldownHours >= 0) || r.Frequency.CooldownHours > MaxCooldownHours {
		return fmt.Errorf("cooldown hours must be within [0, %d] for rule %q", MaxCooldownHours, r.Name)
	}

	if c := r.CustomConditions; c != nil {
		if ft := c.FrequencyThreshold; ft != nil {
			if ft.MinPerWeek < 0 {
				return fmt.Errorf("frequency threshold min per week must not be negative for rule %q", r.Name)
			}
			if ft.MinPerWeek >= ft.MaxPerWeek {
				return fmt.Errorf("frequency threshold min per week must be below max per week for rule %q", r.Name)
			}
		}
		if ht := c.HealthDeclineThreshold; ht != nil {
			if ht.ConcerningRatio <= 0 || ht.ConcerningRatio > 1 {
				return fmt.Errorf("concerning ratio must be within (0, 1] for rule %q", r.Name)
			}
			if ht.ConsecutiveConcerning < 1 {
				return fmt.Errorf("consecutive concerning must be positive for rule %q", r.Name)
			}
		}
		if pt := c.PatternChangeThreshold; pt != nil {
			if pt.ShapeVariationLimit < 1 {
				return fmt.Errorf("shape variation limit must be positive for rule %q", r.Name)
			}
			if pt.ConsistencyChangeRatio <= 0 || pt.ConsistencyChangeRatio > 1 {
				return fmt.Errorf("consistency change ratio must be within (0, 1] for rule %q", r.Name)
			}
		}
	}

	return nil
}

// Channels returns the enabled notification channels in delivery order.
func (r *AlertRule) Channels() []Channel {
	var channels []Channel
	if r.Notifications.InApp {
		channels = append(channels, ChannelInApp)
	}
	if r.Notifications.Email {
		channels = append(channels, ChannelEmail)
	}
	if r.Notifications.Push {
		channels = append(channels, ChannelPush)
	}
	return channels
}

// AppliesTo reports whether the rule covers the given pet.
func (r *AlertRule) AppliesTo(subject Subject) bool {
	if r.UserID != subject.UserID {
		return false
	}
	return r.PetID == "" || r.PetID == subject.PetID
}

// Clone returns a deep copy of the rule so callers can mutate stats safely.
func (r *AlertRule) Clone() *AlertRule {
	c := *r
	c.Triggers.AnomalyTypes = append([]AnomalyType(nil), r.Triggers.AnomalyTypes...)
	c.Triggers.SeverityLevels = append([]Severity(nil), r.Triggers.SeverityLevels...)
	if r.Stats.LastTriggered != nil {
		t := *r.Stats.LastTriggered
		c.Stats.LastTriggered = &t
	}
	if r.CustomConditions != nil {
		cc := *r.CustomConditions
		if cc.FrequencyThreshold != nil {
			ft := *cc.FrequencyThreshold
			cc.FrequencyThreshold = &ft
		}
		if cc.HealthDeclineThreshold != nil {
			ht := *cc.HealthDeclineThreshold
			cc.HealthDeclineThreshold = &ht
		}
		if cc.PatternChangeThreshold != nil {
			pt := *cc.PatternChangeThreshold
			cc.PatternChangeThreshold = &pt
		}
		c.CustomConditions = &cc
	}
	return &c
}
