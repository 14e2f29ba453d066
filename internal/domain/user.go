package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Roles recognised by the marketplace.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// AnonymizedName is the placeholder written over a user's name when a
// GDPR deletion request is processed.
const AnonymizedName = "Anonymous User"

// User represents a marketplace account (buyer, seller or admin)
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Phone        *string    `json:"phone,omitempty" db:"phone"`
	Role         string     `json:"role" db:"role"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// AnonymizedEmail returns the replacement address used when anonymizing
// the given user ID. The local part keeps the ID so historical orders
// remain traceable for financial retention without identifying anyone.
func AnonymizedEmail(id uuid.UUID) string {
	return fmt.Sprintf("anonymized_%s@deleted.local", id)
}

// RefreshToken represents a stored refresh token
type RefreshToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}
