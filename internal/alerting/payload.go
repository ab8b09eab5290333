package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pawwatch/internal/detector"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// CategoryFor maps an anomaly type to a notification category.
func CategoryFor(t models.AnomalyType) models.NotificationCategory {
	switch t {
	case models.AnomalyHealthDecline:
		return models.CategoryHealth
	case models.AnomalyFrequency:
		return models.CategoryFrequency
	case models.AnomalyPatternChange, models.AnomalyConsistencyChange:
		return models.CategoryPattern
	default:
		return models.CategoryGeneral
	}
}

// PriorityFor maps a finding severity to a notification priority.
func PriorityFor(s models.Severity) models.NotificationPriority {
	switch s {
	case models.SeverityLow:
		return models.PriorityLow
	case models.SeverityHigh:
		return models.PriorityHigh
	default:
		return models.PriorityNormal
	}
}

// BuildNotification renders the payload sent for a fired rule.
func BuildNotification(rule *models.AlertRule, subject models.Subject, f detector.Finding, now time.Time) *models.Notification {
	return &models.Notification{
		ID:       uuid.NewString(),
		UserID:   subject.UserID,
		PetID:    subject.PetID,
		Category: CategoryFor(f.Type),
		Title:    fmt.Sprintf("%s: %s detected", rule.Name, typeLabel(f.Type)),
		Message:  f.Description,
		Priority: PriorityFor(f.Severity),
		Metadata: map[string]any{
			"rule_id":         rule.ID,
			"anomaly_type":    string(f.Type),
			"severity":        string(f.Severity),
			"confidence":      f.Confidence,
			"trigger_data":    f.TriggerData,
			"recommendations": f.Recommendations,
		},
		CreatedAt: now,
	}
}

func typeLabel(t models.AnomalyType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}
