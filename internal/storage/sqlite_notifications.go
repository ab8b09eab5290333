package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqliteNotificationRepo struct {
	db *sql.DB
}

func (r *sqliteNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	var metadata sql.NullString
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO notifications (id, user_id, pet_id, category, title, message,
			priority, metadata_json, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, nullString(n.PetID), n.Category, n.Title, n.Message,
		n.Priority, metadata, boolToInt(n.Read), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *sqliteNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, pet_id, category, title, message, priority, metadata_json, is_read, created_at
		FROM notifications WHERE user_id = ?
	`
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var petID, metadata sql.NullString
		var read int
		err := rows.Scan(&n.ID, &n.UserID, &petID, &n.Category, &n.Title, &n.Message,
			&n.Priority, &metadata, &read, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.PetID = petID.String
		n.Read = read != 0
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *sqliteNotificationRepo) MarkRead(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteNotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
