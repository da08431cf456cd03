package identity

import (
	"time"

	"github.com/meatflow/meatflow/internal/shared"
)

// User is a staff account or a customer contact able to act on order sheets.
type User struct {
	ID           int64       `json:"id" db:"id"`
	Username     string      `json:"username" db:"username"`
	Name         string      `json:"name" db:"name"`
	Role         shared.Role `json:"role" db:"role"`
	PasswordHash string      `json:"-" db:"password_hash"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// LoginRequest carries credentials for token issuance.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the bearer token for subsequent requests.
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Role      shared.Role `json:"role"`
}
