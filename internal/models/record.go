package models

import (
	"fmt"
	"time"
)

// HealthStatus is the health classification attached to a record.
type HealthStatus string

const (
	HealthHealthy    HealthStatus = "healthy"
	HealthWarning    HealthStatus = "warning"
	HealthConcerning HealthStatus = "concerning"
)

// Valid reports whether s is a known health status.
func (s HealthStatus) Valid() bool {
	switch s {
	case HealthHealthy, HealthWarning, HealthConcerning:
		return true
	default:
		return false
	}
}

// ParseHealthStatus converts a string to HealthStatus.
func ParseHealthStatus(s string) (HealthStatus, error) {
	status := HealthStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown health status %q", s)
	}
	return status, nil
}

// Shape codes are ordinal categories in the range [MinShapeCode, MaxShapeCode].
const (
	MinShapeCode = 1
	MaxShapeCode = 7
)

// Record is one logged observation for a pet. Records are immutable once created.
type Record struct {
	ID           string       `json:"id"`
	PetID        string       `json:"pet_id"`
	Timestamp    time.Time    `json:"timestamp"`
	ShapeCode    int          `json:"shape_code"`
	HealthStatus HealthStatus `json:"health_status"`
	// Confidence is the capture confidence of the record itself (0-100).
	Confidence float64 `json:"confidence"`
}

// Validate checks the record fields.
func (r *Record) Validate() error {
	if r.PetID == "" {
		return fmt.Errorf("pet id is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if r.ShapeCode < MinShapeCode || r.ShapeCode > MaxShapeCode {
		return fmt.Errorf("shape code %d out of range [%d, %d]", r.ShapeCode, MinShapeCode, MaxShapeCode)
	}
	if !r.HealthStatus.Valid() {
		return fmt.Errorf("unknown health status %q", r.HealthStatus)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("confidence %.2f out of range [0, 100]", r.Confidence)
	}
	return nil
}

// Subject identifies one evaluation unit: a pet and its owner.
type Subject struct {
	UserID string `json:"user_id"`
	PetID  string `json:"pet_id"`
}

// Key returns a stable string form of the subject.
func (s Subject) Key() string {
	return s.UserID + "/" + s.PetID
}

func (s Subject) String() string {
	return s.Key()
}
