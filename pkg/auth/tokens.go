package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

// ErrMissingSubject is returned for tokens that do not name a user.
var ErrMissingSubject = errors.New("token has no user")

// Claims carry the shopper's id in the registered subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrMissingSubject
	}
	return id, nil
}

// Signed is a minted access token.
type Signed struct {
	Token     string
	ExpiresAt time.Time
}

// Tokens mints and verifies HS256 access tokens for one issuer.
type Tokens struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(cfg config.JWTConfig) (*Tokens, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	return &Tokens{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		now:    time.Now,
	}, nil
}

func (t *Tokens) Mint(userID uuid.UUID, email string) (Signed, error) {
	if userID == uuid.Nil {
		return Signed{}, ErrMissingSubject
	}
	issued := t.now().UTC()
	expires := issued.Add(t.ttl)
	token := jwt.NewWithClaims(signingMethod, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	})
	raw, err := token.SignedString(t.key)
	if err != nil {
		return Signed{}, fmt.Errorf("signing jwt: %w", err)
	}
	return Signed{Token: raw, ExpiresAt: expires}, nil
}

// Parse checks the signature, issuer and expiry of raw.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return t.key, nil }); err != nil {
		return nil, err
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyUserID returns the user named by a valid token.
func (t *Tokens) VerifyUserID(raw string) (uuid.UUID, error) {
	claims, err := t.Parse(raw)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID()
}
