package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// Owner identifies whose cart is being operated on. Exactly one cart exists per Owner.
type Owner struct {
	Type enums.CartOwnerType `json:"type"`
	ID   string              `json:"id"`
}

// User builds the owner for an authenticated user.
func User(userID uuid.UUID) Owner {
	return Owner{Type: enums.CartOwnerUser, ID: userID.String()}
}

// Guest builds the owner for an anonymous guest cart id.
func Guest(guestID string) Owner {
	return Owner{Type: enums.CartOwnerGuest, ID: guestID}
}

// Key is the stable "<type>:<id>" form used for locks and logs.
func (o Owner) Key() string {
	return string(o.Type) + ":" + o.ID
}

func (o Owner) IsUser() bool {
	return o.Type == enums.CartOwnerUser
}

func (o Owner) IsGuest() bool {
	return o.Type == enums.CartOwnerGuest
}

// UserID returns the parsed user id for user owners.
func (o Owner) UserID() (uuid.UUID, bool) {
	if !o.IsUser() {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Validate rejects owners with an unknown type or an empty id.
func (o Owner) Validate() error {
	if !o.Type.IsValid() {
		return errors.New("cart owner type is invalid")
	}
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("cart owner id is required")
	}
	if o.IsUser() {
		if _, ok := o.UserID(); !ok {
			return errors.New("user owner id must be a uuid")
		}
	}
	return nil
}
