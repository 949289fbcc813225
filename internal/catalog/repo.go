package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

// productColumns is everything pricing and the product endpoint read.
var productColumns = []string{"id", "name", "price", "is_active", "updated_at"}

// Repository is a read-only view of the products table, which another
// service owns.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// FindByID loads one product. A missing row is gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product := new(models.Product)
	if err := r.db.WithContext(ctx).Select(productColumns).Take(product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return product, nil
}
