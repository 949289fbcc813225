package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

type productReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Product is the public view of a catalog row.
type Product struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Price    string    `json:"price"`
	IsActive bool      `json:"isActive"`
}

// Service resolves products for pricing and the read-only product endpoint.
type Service interface {
	// Lookup returns the stored row whether or not it is active.
	Lookup(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// Get returns an active product or NOT_FOUND.
	Get(ctx context.Context, id uuid.UUID) (*Product, error)
}

type service struct {
	repo productReader
}

func NewService(repo productReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Lookup(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
	}
	return product, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &Product{
		ID:       product.ID,
		Name:     product.Name,
		Price:    product.Price.StringFixed(2),
		IsActive: product.IsActive,
	}, nil
}
