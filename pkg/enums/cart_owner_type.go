package enums

import "fmt"

// CartOwnerType discriminates the two kinds of cart owners.
type CartOwnerType string

const (
	CartOwnerUser  CartOwnerType = "user"
	CartOwnerGuest CartOwnerType = "guest"
)

var validCartOwnerTypes = []CartOwnerType{
	CartOwnerUser,
	CartOwnerGuest,
}

// String implements fmt.Stringer.
func (c CartOwnerType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartOwnerType.
func (c CartOwnerType) IsValid() bool {
	for _, candidate := range validCartOwnerTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCartOwnerType converts raw input into a CartOwnerType.
func ParseCartOwnerType(value string) (CartOwnerType, error) {
	for _, candidate := range validCartOwnerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart owner type %q", value)
}
