package models

import (
	"time"
)

// Pet is a tracked subject owned by a user.
type Pet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPet creates a new Pet with an initialized timestamp.
func NewPet(id, userID, name string) *Pet {
	return &Pet{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now(),
	}
}

// Subject returns the evaluation subject for this pet.
func (p *Pet) Subject() Subject {
	return Subject{UserID: p.UserID, PetID: p.ID}
}
