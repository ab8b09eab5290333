package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

const ruleColumns = `
	id, user_id, pet_id, name, is_active, triggers_json, notifications_json,
	max_per_day, max_per_week, cooldown_hours, custom_conditions_json,
	total_triggered, last_triggered_ns, total_notifications_sent, created_at, updated_at
`

func (r *sqliteRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	triggersJSON, notificationsJSON, customJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alert_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.UserID, nullString(rule.PetID), rule.Name, boolToInt(rule.IsActive),
		triggersJSON, notificationsJSON,
		rule.Frequency.MaxPerDay, rule.Frequency.MaxPerWeek, rule.Frequency.CooldownHours, customJSON,
		rule.Stats.TotalTriggered, nullNanos(rule.Stats.LastTriggered), rule.Stats.TotalNotificationsSent,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ?`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// Update writes the rule configuration. Stats are owned by ClaimTrigger and
// RecordDelivery and are left untouched.
func (r *sqliteRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error {
	triggersJSON, notificationsJSON, customJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE alert_rules SET user_id = ?, pet_id = ?, name = ?, is_active = ?,
			triggers_json = ?, notifications_json = ?, max_per_day = ?, max_per_week = ?,
			cooldown_hours = ?, custom_conditions_json = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.UserID, nullString(rule.PetID), rule.Name, boolToInt(rule.IsActive),
		triggersJSON, notificationsJSON, rule.Frequency.MaxPerDay, rule.Frequency.MaxPerWeek,
		rule.Frequency.CooldownHours, customJSON, rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert rule %s: %w", rule.ID, ErrNotFound)
	}
	return nil
}

func (r *sqliteRuleRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete alert rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteRuleRepo) List(ctx context.Context) ([]*models.AlertRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY created_at, id`)
}

func (r *sqliteRuleRepo) ListByUser(ctx context.Context, userID string) ([]*models.AlertRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (r *sqliteRuleRepo) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alert_rules SET is_active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set alert rule active: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert rule %s: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveRulesFor returns the active rules scoped to petID plus the user's
// rules without a pet scope, in creation order.
func (r *sqliteRuleRepo) ActiveRulesFor(ctx context.Context, userID, petID string) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules
		WHERE is_active = 1 AND user_id = ? AND (pet_id IS NULL OR pet_id = ?)
		ORDER BY created_at, id`
	return r.queryRules(ctx, query, userID, petID)
}

func (r *sqliteRuleRepo) ListActive(ctx context.Context) ([]*models.AlertRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE is_active = 1 ORDER BY created_at, id`)
}

func (r *sqliteRuleRepo) CountTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trigger_history WHERE rule_id = ? AND triggered_at_ns >= ?",
		ruleID, toNanos(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count triggers: %w", err)
	}
	return count, nil
}

// ClaimTrigger bumps the rule stats and inserts the history row in one
// transaction. The update only applies if last_triggered_ns still holds the
// value the caller read; otherwise alerting.ErrTriggerConflict is returned.
func (r *sqliteRuleRepo) ClaimTrigger(ctx context.Context, claim *models.TriggerClaim) error {
	h := claim.History
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE alert_rules
		SET total_triggered = total_triggered + 1, last_triggered_ns = ?
		WHERE id = ? AND is_active = 1 AND last_triggered_ns IS ?
	`, toNanos(h.TriggeredAt), claim.RuleID, nullNanos(claim.PreviousTriggered))
	if err != nil {
		return fmt.Errorf("update rule stats: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return alerting.ErrTriggerConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trigger_history (id, rule_id, user_id, pet_id, anomaly_type, severity,
			confidence, description, triggered_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.RuleID, h.UserID, h.PetID, h.AnomalyType, h.Severity,
		h.Confidence, h.Description, toNanos(h.TriggeredAt))
	if err != nil {
		return fmt.Errorf("insert trigger history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) RecordDelivery(ctx context.Context, historyID, ruleID string, delivery models.Delivery) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sent := delivery.Delivered()
	result, err := tx.ExecContext(ctx, `
		UPDATE trigger_history
		SET delivered_in_app = ?, delivered_email = ?, delivered_push = ?, notifications_sent = ?
		WHERE id = ?
	`, boolToInt(delivery.InApp), boolToInt(delivery.Email), boolToInt(delivery.Push), sent, historyID)
	if err != nil {
		return fmt.Errorf("update trigger history: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("trigger history %s: %w", historyID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE alert_rules SET total_notifications_sent = total_notifications_sent + ? WHERE id = ?",
		sent, ruleID,
	)
	if err != nil {
		return fmt.Errorf("update notification count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) queryRules(ctx context.Context, query string, args ...any) ([]*models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row scanner) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var petID, customJSON sql.NullString
	var triggersJSON, notificationsJSON string
	var lastTriggered sql.NullInt64
	var active int

	err := row.Scan(
		&rule.ID, &rule.UserID, &petID, &rule.Name, &active, &triggersJSON, &notificationsJSON,
		&rule.Frequency.MaxPerDay, &rule.Frequency.MaxPerWeek, &rule.Frequency.CooldownHours, &customJSON,
		&rule.Stats.TotalTriggered, &lastTriggered, &rule.Stats.TotalNotificationsSent,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert rule: %w", err)
	}

	rule.PetID = petID.String
	rule.IsActive = active != 0
	rule.Stats.LastTriggered = nanosPtr(lastTriggered)

	if err := json.Unmarshal([]byte(triggersJSON), &rule.Triggers); err != nil {
		return nil, fmt.Errorf("unmarshal triggers: %w", err)
	}
	if err := json.Unmarshal([]byte(notificationsJSON), &rule.Notifications); err != nil {
		return nil, fmt.Errorf("unmarshal notifications: %w", err)
	}
	if customJSON.Valid && customJSON.String != "" {
		rule.CustomConditions = &models.CustomConditions{}
		if err := json.Unmarshal([]byte(customJSON.String), rule.CustomConditions); err != nil {
			return nil, fmt.Errorf("unmarshal custom conditions: %w", err)
		}
	}

	return rule, nil
}

func marshalRuleJSON(rule *models.AlertRule) (triggers, notifications string, custom sql.NullString, err error) {
	t, err := json.Marshal(rule.Triggers)
	if err != nil {
		return "", "", custom, fmt.Errorf("marshal triggers: %w", err)
	}
	n, err := json.Marshal(rule.Notifications)
	if err != nil {
		return "", "", custom, fmt.Errorf("marshal notifications: %w", err)
	}
	if rule.CustomConditions != nil {
		c, err := json.Marshal(rule.CustomConditions)
		if err != nil {
			return "", "", custom, fmt.Errorf("marshal custom conditions: %w", err)
		}
		custom = sql.NullString{String: string(c), Valid: true}
	}
	return string(t), string(n), custom, nil
}
