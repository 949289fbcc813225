package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

// Item is one product line of a cart.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
	Position  int
}

// Cart is the owner's cart with items in insertion order. ID is uuid.Nil
// while the cart has never been persisted.
type Cart struct {
	ID        uuid.UUID
	Owner     identity.Owner
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Persisted reports whether the cart has a stored row.
func (c *Cart) Persisted() bool {
	return c != nil && c.ID != uuid.Nil
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// TotalCount is the sum of quantities, shown on the cart badge.
func (c *Cart) TotalCount() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Quantity returns the quantity of productID, or 0 when absent.
func (c *Cart) Quantity(productID uuid.UUID) int {
	if c == nil {
		return 0
	}
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

func emptyCart(owner identity.Owner) *Cart {
	return &Cart{Owner: owner, Items: []Item{}}
}

func fromModel(owner identity.Owner, record *models.Cart) *Cart {
	if record == nil {
		return emptyCart(owner)
	}
	out := &Cart{
		ID:        record.ID,
		Owner:     owner,
		Items:     make([]Item, 0, len(record.Items)),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	for _, row := range record.Items {
		out.Items = append(out.Items, Item{
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			Position:  row.Position,
		})
	}
	return out
}
