package models

import (
	"time"

	"github.com/google/uuid"
)

// Project names are unique and non-empty. A project can only be deleted
// while no task references it.
type Project struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
