package checkout

import (
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

// ContactInput is the raw delivery contact submitted with a checkout.
type ContactInput struct {
	ContactName     string
	ContactPhone    string
	ShippingAddress string
	City            *string
}

// Contact is a validated, trimmed ContactInput. City is nil when blank.
type Contact struct {
	Name            string
	Phone           string
	ShippingAddress string
	City            *string
}

// ValidateContact trims every field and rejects the first blank required
// field, checked in the order name, phone, address.
func ValidateContact(input ContactInput) (Contact, error) {
	required := []struct {
		field string
		value string
	}{
		{field: "contactName", value: input.ContactName},
		{field: "contactPhone", value: input.ContactPhone},
		{field: "shippingAddress", value: input.ShippingAddress},
	}
	for _, candidate := range required {
		if strings.TrimSpace(candidate.value) == "" {
			return Contact{}, pkgerrors.Field(candidate.field, "is required")
		}
	}

	contact := Contact{
		Name:            strings.TrimSpace(input.ContactName),
		Phone:           strings.TrimSpace(input.ContactPhone),
		ShippingAddress: strings.TrimSpace(input.ShippingAddress),
	}
	if input.City != nil {
		if city := strings.TrimSpace(*input.City); city != "" {
			contact.City = &city
		}
	}
	return contact, nil
}
