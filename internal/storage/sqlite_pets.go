package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

type sqlitePetRepo struct {
	db *sql.DB
}

func (r *sqlitePetRepo) Create(ctx context.Context, pet *models.Pet) error {
	query := `
		INSERT INTO pets (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, pet.ID, pet.UserID, pet.Name, pet.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pet: %w", err)
	}
	return nil
}

func (r *sqlitePetRepo) GetByID(ctx context.Context, id string) (*models.Pet, error) {
	query := `SELECT id, user_id, name, created_at FROM pets WHERE id = ?`
	pet := &models.Pet{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&pet.ID, &pet.UserID, &pet.Name, &pet.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pet by id: %w", err)
	}
	return pet, nil
}

func (r *sqlitePetRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM pets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete pet: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("pet %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqlitePetRepo) List(ctx context.Context) ([]*models.Pet, error) {
	return r.queryPets(ctx, `SELECT id, user_id, name, created_at FROM pets ORDER BY id`)
}

// PetsForUser returns the user's pets ordered by id.
func (r *sqlitePetRepo) PetsForUser(ctx context.Context, userID string) ([]*models.Pet, error) {
	return r.queryPets(ctx, `SELECT id, user_id, name, created_at FROM pets WHERE user_id = ? ORDER BY id`, userID)
}

func (r *sqlitePetRepo) queryPets(ctx context.Context, query string, args ...any) ([]*models.Pet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pets: %w", err)
	}
	defer rows.Close()

	var pets []*models.Pet
	for rows.Next() {
		pet := &models.Pet{}
		if err := rows.Scan(&pet.ID, &pet.UserID, &pet.Name, &pet.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		pets = append(pets, pet)
	}
	return pets, rows.Err()
}
