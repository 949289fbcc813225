package auth

import (
	"time"

	"github.com/angelmondragon/storefront-cart/internal/users"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=256"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// MergeSummary reports the guest cart lines folded into the user's cart.
type MergeSummary struct {
	MovedLines int `json:"movedLines"`
	MovedUnits int `json:"movedUnits"`
}

// Response is returned by register and login.
type Response struct {
	AccessToken string         `json:"accessToken"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	User        *users.Profile `json:"user"`
	CartMerge   *MergeSummary  `json:"cartMerge,omitempty"`
}
