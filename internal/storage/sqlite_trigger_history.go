package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqliteTriggerHistoryRepo struct {
	db *sql.DB
}

const historyColumns = `
	id, rule_id, user_id, pet_id, anomaly_type, severity, confidence, description,
	delivered_in_app, delivered_email, delivered_push, notifications_sent, triggered_at_ns
`

func (r *sqliteTriggerHistoryRepo) List(ctx context.Context, limit, offset int) ([]*models.TriggerHistory, int64, error) {
	return r.page(ctx, "", nil, limit, offset)
}

func (r *sqliteTriggerHistoryRepo) ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]*models.TriggerHistory, int64, error) {
	return r.page(ctx, "rule_id = ?", ruleID, limit, offset)
}

func (r *sqliteTriggerHistoryRepo) ListByPet(ctx context.Context, petID string, limit, offset int) ([]*models.TriggerHistory, int64, error) {
	return r.page(ctx, "pet_id = ?", petID, limit, offset)
}

func (r *sqliteTriggerHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM trigger_history WHERE triggered_at_ns < ?", toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("delete trigger history: %w", err)
	}
	return result.RowsAffected()
}

// page returns one page of history, newest first, with the total row count.
func (r *sqliteTriggerHistoryRepo) page(ctx context.Context, where string, arg any, limit, offset int) ([]*models.TriggerHistory, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	clause := ""
	var args []any
	if where != "" {
		clause = " WHERE " + where
		args = append(args, arg)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trigger_history"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trigger history: %w", err)
	}

	query := "SELECT " + historyColumns + " FROM trigger_history" + clause +
		" ORDER BY triggered_at_ns DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query trigger history: %w", err)
	}
	defer rows.Close()

	var histories []*models.TriggerHistory
	for rows.Next() {
		h := &models.TriggerHistory{}
		var inApp, email, push int
		var triggeredAt int64
		err := rows.Scan(&h.ID, &h.RuleID, &h.UserID, &h.PetID, &h.AnomalyType, &h.Severity,
			&h.Confidence, &h.Description, &inApp, &email, &push, &h.NotificationsSent, &triggeredAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan trigger history: %w", err)
		}
		h.Delivery = models.Delivery{InApp: inApp != 0, Email: email != 0, Push: push != 0}
		h.TriggeredAt = fromNanos(triggeredAt)
		histories = append(histories, h)
	}
	return histories, total, rows.Err()
}
