package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// Item is one line of an order as returned to callers.
type Item struct {
	ProductID    uuid.UUID `json:"productId"`
	Quantity     int       `json:"quantity"`
	UnitPrice    string    `json:"unitPrice"`
	LineSubtotal string    `json:"lineSubtotal"`
}

// Order is the public view of a placed order.
type Order struct {
	ID              uuid.UUID           `json:"id"`
	OwnerType       enums.CartOwnerType `json:"ownerType"`
	OwnerID         string              `json:"ownerId"`
	UserID          *uuid.UUID          `json:"userId,omitempty"`
	ContactName     string              `json:"contactName"`
	ContactPhone    string              `json:"contactPhone"`
	ShippingAddress string              `json:"shippingAddress"`
	City            *string             `json:"city,omitempty"`
	Items           []Item              `json:"items"`
	Total           string              `json:"total"`
	TotalCount      int                 `json:"totalCount"`
	Status          enums.OrderStatus   `json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// ListParams selects a page of the caller's orders, newest first.
type ListParams struct {
	Limit  int
	Cursor string
}

// ListResult wraps one page of orders plus the cursor of the next page.
type ListResult struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// FromModel maps a stored order to its public view.
func FromModel(record *models.Order) *Order {
	if record == nil {
		return nil
	}
	out := &Order{
		ID:              record.ID,
		OwnerType:       record.OwnerType,
		OwnerID:         record.OwnerID,
		UserID:          record.UserID,
		ContactName:     record.ContactName,
		ContactPhone:    record.ContactPhone,
		ShippingAddress: record.ShippingAddress,
		City:            record.City,
		Items:           make([]Item, 0, len(record.Items)),
		Total:           record.Total.StringFixed(2),
		TotalCount:      record.TotalCount,
		Status:          record.Status,
		CreatedAt:       record.CreatedAt,
	}
	for _, line := range record.Items {
		out.Items = append(out.Items, Item{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice.StringFixed(2),
			LineSubtotal: line.LineSubtotal.StringFixed(2),
		})
	}
	return out
}
