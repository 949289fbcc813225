package cart

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/api/validators"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

type itemRequest struct {
	ProductID string      `json:"productId" validate:"notblank"`
	Quantity  json.Number `json:"quantity"`
}

// decodeItem reads an add or update body.
func decodeItem(r *http.Request) (uuid.UUID, int, error) {
	var body itemRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return uuid.Nil, 0, err
	}
	productID, err := parseProductID(body.ProductID)
	if err != nil {
		return uuid.Nil, 0, err
	}
	quantity, err := validators.ParseQuantity(body.Quantity)
	if err != nil {
		return uuid.Nil, 0, err
	}
	return productID, quantity, nil
}

type removeRequest struct {
	ProductID string `json:"productId" validate:"notblank"`
}

func decodeRemoval(r *http.Request) (uuid.UUID, error) {
	var body removeRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return uuid.Nil, err
	}
	return parseProductID(body.ProductID)
}

func parseProductID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.Field("productId", "must be a valid uuid")
	}
	return id, nil
}
