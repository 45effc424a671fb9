package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser is a login for the web API.
type AdminUser struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Enabled      bool      `json:"enabled"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}
