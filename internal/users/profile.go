package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

// Profile is what the API shows of an account. It never carries the hash.
type Profile struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Phone       *string    `json:"phone,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func ProfileOf(u *models.User) *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Phone:       u.Phone,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// NewUser is a registration that already passed validation and hashing.
type NewUser struct {
	Email        string
	PasswordHash string
	Name         string
	Phone        *string
}

// Row is the users row to insert, with the email trimmed and lower-cased
// so the unique index matches case-insensitively.
func (n NewUser) Row(at time.Time) *models.User {
	at = at.UTC()
	return &models.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(n.Email)),
		PasswordHash: n.PasswordHash,
		Name:         strings.TrimSpace(n.Name),
		Phone:        n.Phone,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}
