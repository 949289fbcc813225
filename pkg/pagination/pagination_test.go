package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	require.Equal(t, DefaultLimit, Clamp(0))
	require.Equal(t, DefaultLimit, Clamp(-4))
	require.Equal(t, 7, Clamp(7))
	require.Equal(t, MaxLimit, Clamp(MaxLimit+1))
}

func TestCursorTokenKeepsPosition(t *testing.T) {
	placed := time.Date(2026, 2, 14, 9, 30, 0, 123456789, time.FixedZone("CET", 3600))
	id := uuid.New()

	token := Cursor{CreatedAt: placed, ID: id}.Encode()
	require.NotContains(t, token, "=")

	got, err := Decode(token)
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Equal(placed))
	require.Equal(t, time.UTC, got.CreatedAt.Location())
	require.Equal(t, id, got.ID)
}

func TestDecodeRejectsForeignTokens(t *testing.T) {
	got, err := Decode("  ")
	require.NoError(t, err)
	require.Nil(t, got)

	for _, token := range []string{"%%%", "bm90LWpzb24", "eyJ0IjoiMjAyNi0wMS0wMVQwMDowMDowMFoifQ"} {
		_, err := Decode(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}
