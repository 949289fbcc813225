package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// OrderPlacedItem is one priced line of a placed order.
type OrderPlacedItem struct {
	ProductID    uuid.UUID       `json:"productId"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	LineSubtotal decimal.Decimal `json:"lineSubtotal"`
}

// OrderPlacedEvent is emitted in the checkout transaction. Fulfillment and
// analytics consume it.
type OrderPlacedEvent struct {
	OrderID    uuid.UUID           `json:"orderId"`
	OwnerType  enums.CartOwnerType `json:"ownerType"`
	OwnerID    string              `json:"ownerId"`
	UserID     *uuid.UUID          `json:"userId,omitempty"`
	City       *string             `json:"city,omitempty"`
	Total      decimal.Decimal     `json:"total"`
	TotalCount int                 `json:"totalCount"`
	Items      []OrderPlacedItem   `json:"items"`
	PlacedAt   time.Time           `json:"placedAt"`
}

// CartMergedEvent records a guest cart folded into a user cart at login.
type CartMergedEvent struct {
	GuestCartID string    `json:"guestCartId"`
	UserID      uuid.UUID `json:"userId"`
	CartID      uuid.UUID `json:"cartId"`
	MovedLines  int       `json:"movedLines"`
	MovedUnits  int       `json:"movedUnits"`
	MergedAt    time.Time `json:"mergedAt"`
}
