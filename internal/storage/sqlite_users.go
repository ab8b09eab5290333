package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

const userColumns = `id, email, name, created_at`

type sqliteUserRepo struct {
	db *sql.DB
}

func (r *sqliteUserRepo) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, nullString(user.Name), user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", user.ID, err)
	}
	return nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *sqliteUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

// getBy loads the user whose column equals value. column is never user input.
func (r *sqliteUserRepo) getBy(ctx context.Context, column, value string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	user, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return user, nil
}

// Delete removes the user; pets, rules and history cascade.
func (r *sqliteUserRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteUserRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *sqliteUserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUserRow(row scanner) (*models.User, error) {
	var (
		user models.User
		name sql.NullString
	)
	if err := row.Scan(&user.ID, &user.Email, &name, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Name = name.String
	return &user, nil
}
