package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// Cart is the single persisted cart of one owner. Items come back in
// Position order, which is the order products were first added.
type Cart struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerType enums.CartOwnerType `gorm:"column:owner_type;type:text;not null"`
	OwnerID   string              `gorm:"column:owner_id;type:text;not null"`
	Items     []CartItem          `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Cart) TableName() string { return "carts" }

// CartItem is one product line. The schema keeps (cart_id, product_id)
// unique and quantity positive.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Position  int       `gorm:"column:position;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
