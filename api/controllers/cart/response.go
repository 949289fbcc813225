package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/internal/pricing"
)

const moneyPlaces = 2

type pricedCartResponse struct {
	Owner       identity.Owner `json:"owner"`
	Items       []lineResponse `json:"items"`
	Total       string         `json:"total"`
	TotalCount  int            `json:"totalCount"`
	PricedCount int            `json:"pricedCount"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
}

type lineResponse struct {
	ProductID    uuid.UUID `json:"productId"`
	Name         string    `json:"name,omitempty"`
	Quantity     int       `json:"quantity"`
	UnitPrice    *string   `json:"unitPrice,omitempty"`
	LineSubtotal *string   `json:"lineSubtotal,omitempty"`
	Missing      bool      `json:"missing"`
}

func newPricedCartResponse(priced *pricing.PricedCart) pricedCartResponse {
	resp := pricedCartResponse{
		Owner:       priced.Owner,
		Items:       make([]lineResponse, 0, len(priced.Items)),
		Total:       priced.Total.StringFixed(moneyPlaces),
		TotalCount:  priced.TotalCount,
		PricedCount: priced.PricedCount,
		UpdatedAt:   priced.UpdatedAt,
	}
	for _, line := range priced.Items {
		item := lineResponse{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			Missing:   line.Missing,
		}
		if line.UnitPrice != nil {
			unit := line.UnitPrice.StringFixed(moneyPlaces)
			item.UnitPrice = &unit
		}
		if line.LineSubtotal != nil {
			subtotal := line.LineSubtotal.StringFixed(moneyPlaces)
			item.LineSubtotal = &subtotal
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
