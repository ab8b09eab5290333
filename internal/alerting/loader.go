package alerting

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// RuleSpec is the YAML form of an alert rule. Omitted sections keep the
// defaults of models.NewAlertRule.
type RuleSpec struct {
	ID     string `yaml:"id,omitempty"`
	UserID string `yaml:"user_id,omitempty"`
	PetID  string `yaml:"pet_id,omitempty"`
	Name   string `yaml:"name"`
	// Enabled controls whether the rule is active. Defaults to true.
	Enabled          *bool                        `yaml:"enabled,omitempty"`
	Triggers         models.Triggers              `yaml:"triggers"`
	Notifications    *models.NotificationSettings `yaml:"notifications,omitempty"`
	Frequency        *models.Frequency            `yaml:"frequency,omitempty"`
	CustomConditions *models.CustomConditions     `yaml:"custom_conditions,omitempty"`
}

// IsEnabled returns whether the rule is enabled.
func (s *RuleSpec) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// Rule converts s into a rule owned by userID, unless s names
// its own user.
func (s *RuleSpec) Rule(userID string) *models.AlertRule {
	if s.UserID != "" {
		userID = s.UserID
	}
	rule := models.NewAlertRule(userID, s.Name)
	rule.ID = s.ID
	rule.PetID = s.PetID
	rule.IsActive = s.IsEnabled()
	rule.Triggers = s.Triggers
	if s.Notifications != nil {
		rule.Notifications = *s.Notifications
	}
	if s.Frequency != nil {
		rule.Frequency = *s.Frequency
	}
	rule.CustomConditions = s.CustomConditions
	return rule
}

// RulesConfig represents the top-level YAML rules file.
type RulesConfig struct {
	Rules []*RuleSpec `yaml:"rules"`
}

// LoadRulesFromFile loads alert rules from a YAML file.
func LoadRulesFromFile(path, userID string) ([]*models.AlertRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadRules(f, userID)
}

// LoadRules loads alert rules from a reader and validates them.
func LoadRules(r io.Reader, userID string) ([]*models.AlertRule, error) {
	var config RulesConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	return buildRules(config.Rules, userID)
}

// LoadRulesFromBytes loads alert rules from YAML bytes.
func LoadRulesFromBytes(data []byte, userID string) ([]*models.AlertRule, error) {
	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	return buildRules(config.Rules, userID)
}

func buildRules(specs []*RuleSpec, userID string) ([]*models.AlertRule, error) {
	matcher := NewMatcher()
	rules := make([]*models.AlertRule, 0, len(specs))
	for i, spec := range specs {
		if spec == nil {
			return nil, fmt.Errorf("invalid rule at index %d: empty rule", i)
		}
		rule := spec.Rule(userID)
		if err := matcher.ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
