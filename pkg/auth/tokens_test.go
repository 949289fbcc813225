package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-cart/pkg/config"
)

var shopperJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}

func tokensAt(t *testing.T, cfg config.JWTConfig, at time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens(cfg)
	require.NoError(t, err)
	tokens.now = func() time.Time { return at }
	return tokens
}

func TestTokensRoundTrip(t *testing.T) {
	issued := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	tokens := tokensAt(t, shopperJWT, issued)
	userID := uuid.New()

	signed, err := tokens.Mint(userID, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, issued.Add(30*time.Minute), signed.ExpiresAt)

	claims, err := tokens.Parse(signed.Token)
	require.NoError(t, err)
	got, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "storefront", claims.Issuer)

	verified, err := tokens.VerifyUserID(signed.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, verified)
}

func TestTokensRejectForeignOrTamperedTokens(t *testing.T) {
	issued := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	signed, err := tokensAt(t, shopperJWT, issued).Mint(uuid.New(), "")
	require.NoError(t, err)

	rotated := shopperJWT
	rotated.Secret = "rotated"
	otherIssuer := shopperJWT
	otherIssuer.Issuer = "backoffice"

	for name, tc := range map[string]struct {
		tokens *Tokens
		raw    string
	}{
		"tampered":     {tokensAt(t, shopperJWT, issued), signed.Token + "x"},
		"other secret": {tokensAt(t, rotated, issued), signed.Token},
		"other issuer": {tokensAt(t, otherIssuer, issued), signed.Token},
		"not a jwt":    {tokensAt(t, shopperJWT, issued), "garbage"},
		"after expiry": {tokensAt(t, shopperJWT, issued.Add(31*time.Minute)), signed.Token},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tc.tokens.VerifyUserID(tc.raw)
			assert.Error(t, err)
		})
	}

	_, err = tokensAt(t, shopperJWT, issued.Add(31*time.Minute)).Parse(signed.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokensRejectOtherAlgorithms(t *testing.T) {
	tokens := tokensAt(t, shopperJWT, time.Now())
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "storefront",
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Parse(unsigned)
	assert.Error(t, err)
}

func TestTokensRequireSubject(t *testing.T) {
	tokens := tokensAt(t, shopperJWT, time.Now())
	_, err := tokens.Mint(uuid.Nil, "")
	assert.ErrorIs(t, err, ErrMissingSubject)

	raw, err := jwt.NewWithClaims(signingMethod, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "storefront",
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString([]byte(shopperJWT.Secret))
	require.NoError(t, err)
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestNewTokensValidatesConfig(t *testing.T) {
	for name, cfg := range map[string]config.JWTConfig{
		"no secret": {Issuer: "storefront", ExpirationMinutes: 5},
		"no issuer": {Secret: "secret", ExpirationMinutes: 5},
		"no ttl":    {Secret: "secret", Issuer: "storefront"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewTokens(cfg)
			assert.Error(t, err)
		})
	}
}
