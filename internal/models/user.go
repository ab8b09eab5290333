package models

import (
	"time"
)

// User is a pet owner who receives notifications.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser creates a new User with an initialized timestamp.
func NewUser(id, email string) *User {
	return &User{
		ID:        id,
		Email:     email,
		CreatedAt: time.Now(),
	}
}
