package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/catalog"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

type stubCatalog struct {
	product *catalog.Product
	err     error
}

func (s stubCatalog) Lookup(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return nil, s.err
}

func (s stubCatalog) Get(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	return s.product, s.err
}

func TestProductDetail(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name   string
		svc    stubCatalog
		path   string
		status int
	}{
		{name: "found", svc: stubCatalog{product: &catalog.Product{ID: id, Name: "Espresso", Price: "3.00", IsActive: true}}, path: "/products/" + id.String(), status: http.StatusOK},
		{name: "not found", svc: stubCatalog{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}, path: "/products/" + id.String(), status: http.StatusNotFound},
		{name: "bad id", svc: stubCatalog{}, path: "/products/espresso", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := chi.NewRouter()
			router.Get("/products/{productId}", ProductDetail(tc.svc, nil))

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestProductDetailWithoutCatalog(t *testing.T) {
	resp := httptest.NewRecorder()
	ProductDetail(nil, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/products/"+uuid.NewString(), nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
