package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/internal/identity"
)

// Line is one cart line with its live price. UnitPrice and LineSubtotal
// are nil when Missing is set.
type Line struct {
	ProductID     uuid.UUID
	Name          string
	Quantity      int
	UnitPrice     *decimal.Decimal
	LineSubtotal  *decimal.Decimal
	Missing       bool
	MissingReason string
}

// PricedCart is a cart snapshot enriched with live prices.
type PricedCart struct {
	CartID      uuid.UUID
	Owner       identity.Owner
	Items       []Line
	Total       decimal.Decimal
	TotalCount  int
	PricedCount int
	UpdatedAt   *time.Time
}

// PricedLines returns the lines that carry a price, in cart order.
func (p *PricedCart) PricedLines() []Line {
	if p == nil {
		return nil
	}
	out := make([]Line, 0, p.PricedCount)
	for _, line := range p.Items {
		if !line.Missing {
			out = append(out, line)
		}
	}
	return out
}

// PricedUnits is the quantity summed over priced lines only.
func (p *PricedCart) PricedUnits() int {
	total := 0
	for _, line := range p.PricedLines() {
		total += line.Quantity
	}
	return total
}
