package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size bounds for order history.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidCursor is returned for tokens this package did not issue.
var ErrInvalidCursor = errors.New("invalid page cursor")

// Cursor is the last row of a page in (created_at DESC, id DESC) order.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Clamp maps a requested page size onto [1, MaxLimit], using DefaultLimit
// when none was requested.
func Clamp(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(Cursor{CreatedAt: c.CreatedAt.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a token from Encode. An empty token means the first page
// and yields a nil cursor.
func Decode(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}
