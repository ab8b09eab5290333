package alerting

import "github.com/good-yellow-bee/pawwatch/internal/models"

// DefaultRules returns the starter rules created for a new user. They apply
// to all of the user's pets.
func DefaultRules(userID string) []*models.AlertRule {
	health := models.NewAlertRule(userID, "Health decline")
	health.Triggers = models.Triggers{
		AnomalyTypes:      []models.AnomalyType{models.AnomalyHealthDecline},
		SeverityLevels:    []models.Severity{models.SeverityMedium, models.SeverityHigh},
		MinimumConfidence: 60,
	}
	health.Notifications = models.NotificationSettings{InApp: true, Email: true}

	frequency := models.NewAlertRule(userID, "Unusual frequency")
	frequency.Triggers = models.Triggers{
		AnomalyTypes:      []models.AnomalyType{models.AnomalyFrequency},
		SeverityLevels:    []models.Severity{models.SeverityHigh},
		MinimumConfidence: 70,
	}
	frequency.Frequency = models.Frequency{MaxPerDay: 1, MaxPerWeek: 2, CooldownHours: 48}

	pattern := models.NewAlertRule(userID, "Pattern change")
	pattern.Triggers = models.Triggers{
		AnomalyTypes:      []models.AnomalyType{models.AnomalyPatternChange, models.AnomalyConsistencyChange},
		SeverityLevels:    []models.Severity{models.SeverityMedium, models.SeverityHigh},
		MinimumConfidence: 70,
	}
	pattern.Frequency = models.Frequency{MaxPerDay: 1, MaxPerWeek: 2, CooldownHours: 72}

	return []*models.AlertRule{health, frequency, pattern}
}
