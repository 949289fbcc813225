package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// Order is the immutable snapshot written at checkout. Only Status changes afterwards.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerType       enums.CartOwnerType `gorm:"column:owner_type;type:text;not null"`
	OwnerID         string              `gorm:"column:owner_id;type:text;not null"`
	UserID          *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	ContactName     string              `gorm:"column:contact_name;not null"`
	ContactPhone    string              `gorm:"column:contact_phone;not null"`
	ShippingAddress string              `gorm:"column:shipping_address;not null"`
	City            *string             `gorm:"column:city"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	TotalCount      int                 `gorm:"column:total_count;not null"`
	Status          enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'placed'"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is one priced line of an order.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineSubtotal decimal.Decimal `gorm:"column:line_subtotal;type:numeric(12,2);not null"`
	Position     int             `gorm:"column:position;not null"`
}

func (OrderItem) TableName() string { return "order_items" }
