package validators

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

// ParseQuantity converts a JSON number into a cart quantity. Fractions,
// exponents and values outside the 32-bit range are rejected. Range checks
// against zero are left to the caller because updates accept <= 0.
func ParseQuantity(raw json.Number) (int, error) {
	value := strings.TrimSpace(raw.String())
	if value == "" {
		return 0, invalidQuantity("quantity is required")
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, invalidQuantity("quantity must be an integer")
	}
	if parsed > math.MaxInt32 || parsed < math.MinInt32 {
		return 0, invalidQuantity("quantity is out of range")
	}
	return int(parsed), nil
}

func invalidQuantity(msg string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, msg).WithDetails(map[string]any{"field": "quantity"})
}
