package models

import (
	"strings"
	"testing"
	"time"
)

func validRule() AlertRule {
	return AlertRule{
		UserID:   "user-1",
		Name:     "test-rule",
		IsActive: true,
		Triggers: Triggers{
			AnomalyTypes:      []AnomalyType{AnomalyFrequency},
			SeverityLevels:    []Severity{SeverityMedium, SeverityHigh},
			MinimumConfidence: 50,
		},
		Frequency: Frequency{MaxPerDay: 1, MaxPerWeek: 3, CooldownHours: 24},
	}
}

func TestAlertRuleValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *AlertRule)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid rule",
			mutate: func(r *AlertRule) {},
		},
		{
			name:    "empty name",
			mutate:  func(r *AlertRule) { r.Name = "" },
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "missing user",
			mutate:  func(r *AlertRule) { r.UserID = "" },
			wantErr: true,
			errMsg:  "user id is required",
		},
		{
			name:    "no anomaly types",
			mutate:  func(r *AlertRule) { r.Triggers.AnomalyTypes = nil },
			wantErr: true,
			errMsg:  "at least one anomaly type",
		},
		{
			name:    "unknown anomaly type",
			mutate:  func(r *AlertRule) { r.Triggers.AnomalyTypes = []AnomalyType{"weather"} },
			wantErr: true,
			errMsg:  "invalid anomaly type",
		},
		{
			name:    "unknown severity",
			mutate:  func(r *AlertRule) { r.Triggers.SeverityLevels = []Severity{"critical"} },
			wantErr: true,
			errMsg:  "invalid severity",
		},
		{
			name:    "confidence above 100",
			mutate:  func(r *AlertRule) { r.Triggers.MinimumConfidence = 101 },
			wantErr: true,
			errMsg:  "minimum confidence",
		},
		{
			name:    "zero max per day",
			mutate:  func(r *AlertRule) { r.Frequency.MaxPerDay = 0 },
			wantErr: true,
			errMsg:  "max per day must be positive",
		},
		{
			name:    "daily cap above weekly cap",
			mutate:  func(r *AlertRule) { r.Frequency.MaxPerDay = 5; r.Frequency.MaxPerWeek = 4 },
			wantErr: true,
			errMsg:  "exceeds max per week",
		},
		{
			name:    "negative cooldown",
			mutate:  func(r *AlertRule) { r.Frequency.CooldownHours = -1 },
			wantErr: true,
			errMsg:  "cooldown hours",
		},
		{
			name:    "cooldown beyond a year",
			mutate:  func(r *AlertRule) { r.Frequency.CooldownHours = 1e12 },
			wantErr: true,
			errMsg:  "cooldown hours",
		},
		{
			name:    "cooldown of exactly a year",
			mutate:  func(r *AlertRule) { r.Frequency.CooldownHours = MaxCooldownHours },
			wantErr: false,
		},
		{
			name: "frequency threshold min equals max",
			mutate: func(r *AlertRule) {
				r.CustomConditions = &CustomConditions{
					FrequencyThreshold: &FrequencyThreshold{MinPerWeek: 5, MaxPerWeek: 5},
				}
			},
			wantErr: true,
			errMsg:  "must be below max per week",
		},
		{
			name: "valid frequency threshold",
			mutate: func(r *AlertRule) {
				r.CustomConditions = &CustomConditions{
					FrequencyThreshold: &FrequencyThreshold{MinPerWeek: 2, MaxPerWeek: 14},
				}
			},
		},
		{
			name: "concerning ratio out of range",
			mutate: func(r *AlertRule) {
				r.CustomConditions = &CustomConditions{
					HealthDeclineThreshold: &HealthDeclineThreshold{ConcerningRatio: 1.5, ConsecutiveConcerning: 2},
				}
			},
			wantErr: true,
			errMsg:  "concerning ratio",
		},
		{
			name: "pattern threshold zero limit",
			mutate: func(r *AlertRule) {
				r.CustomConditions = &CustomConditions{
					PatternChangeThreshold: &PatternChangeThreshold{ShapeVariationLimit: 0, ConsistencyChangeRatio: 0.5},
				}
			},
			wantErr: true,
			errMsg:  "shape variation limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			err := rule.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFrequencyCooldown(t *testing.T) {
	tests := []struct {
		hours float64
		want  time.Duration
	}{
		{hours: 0, want: 0},
		{hours: -3, want: 0},
		{hours: 1.5, want: 90 * time.Minute},
		{hours: MaxCooldownHours, want: MaxCooldownHours * time.Hour},
		{hours: 1e12, want: MaxCooldownHours * time.Hour},
	}
	for _, tt := range tests {
		if got := (Frequency{CooldownHours: tt.hours}).Cooldown(); got != tt.want {
			t.Errorf("Cooldown(%v) = %v, want %v", tt.hours, got, tt.want)
		}
	}
}

func TestAlertRuleChannels(t *testing.T) {
	rule := validRule()
	rule.Notifications = NotificationSettings{InApp: true, Push: true}

	got := rule.Channels()
	if len(got) != 2 || got[0] != ChannelInApp || got[1] != ChannelPush {
		t.Errorf("channels = %v, want [in_app push]", got)
	}
}

func TestAlertRuleAppliesTo(t *testing.T) {
	rule := validRule()

	if !rule.AppliesTo(Subject{UserID: "user-1", PetID: "any"}) {
		t.Error("user-wide rule should apply to every pet of the user")
	}
	if rule.AppliesTo(Subject{UserID: "user-2", PetID: "any"}) {
		t.Error("rule should not apply to another user")
	}

	rule.PetID = "pet-1"
	if rule.AppliesTo(Subject{UserID: "user-1", PetID: "pet-2"}) {
		t.Error("pet-scoped rule should not apply to another pet")
	}
}

func TestAlertRuleCloneIsDeep(t *testing.T) {
	rule := validRule()
	last := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rule.Stats.LastTriggered = &last
	rule.CustomConditions = &CustomConditions{FrequencyThreshold: &FrequencyThreshold{MinPerWeek: 1, MaxPerWeek: 2}}

	clone := rule.Clone()
	*clone.Stats.LastTriggered = last.Add(time.Hour)
	clone.CustomConditions.FrequencyThreshold.MaxPerWeek = 9
	clone.Triggers.AnomalyTypes[0] = AnomalyPatternChange

	if !rule.Stats.LastTriggered.Equal(last) {
		t.Error("clone shares last triggered pointer")
	}
	if rule.CustomConditions.FrequencyThreshold.MaxPerWeek != 2 {
		t.Error("clone shares custom conditions")
	}
	if rule.Triggers.AnomalyTypes[0] != AnomalyFrequency {
		t.Error("clone shares anomaly types slice")
	}
}

func TestDeliveryDelivered(t *testing.T) {
	var d Delivery
	d.Set(ChannelInApp, true)
	d.Set(ChannelEmail, false)
	d.Set(ChannelPush, true)

	if got := d.Delivered(); got != 2 {
		t.Errorf("delivered = %d, want 2", got)
	}
}

func TestRecordValidate(t *testing.T) {
	r := Record{PetID: "pet-1", Timestamp: time.Now(), ShapeCode: 4, HealthStatus: HealthHealthy, Confidence: 90}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.ShapeCode = 8
	if err := r.Validate(); err == nil {
		t.Error("expected error for shape code 8")
	}

	r.ShapeCode = 4
	r.HealthStatus = "sick"
	if err := r.Validate(); err == nil {
		t.Error("expected error for unknown health status")
	}
}
