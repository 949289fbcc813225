package cart

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

// MaxLineQuantity is the largest quantity a cart_items row can hold (int4).
const MaxLineQuantity = math.MaxInt32

const pgNumericOutOfRange = "22003"

// ErrQuantityOverflow is returned when a line would exceed MaxLineQuantity.
var ErrQuantityOverflow = errors.New("cart line quantity exceeds limit")

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByOwner(ctx context.Context, owner identity.Owner) (*models.Cart, error)
	Ensure(ctx context.Context, owner identity.Owner) (*models.Cart, error)
	AddQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error
	SetQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	Touch(ctx context.Context, cartID uuid.UUID) error
}

// Repository persists carts and their lines.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, now: r.now}
}

// FindByOwner loads the owner's cart with items in insertion order.
// Returns gorm.ErrRecordNotFound when the owner has no cart yet.
func (r *Repository) FindByOwner(ctx context.Context, owner identity.Owner) (*models.Cart, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("created_at ASC")
		}).
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.ID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Ensure returns the owner's cart, creating it on first use. Concurrent
// creators converge on the single row guarded by carts_owner_key.
func (r *Repository) Ensure(ctx context.Context, owner identity.Owner) (*models.Cart, error) {
	record, err := r.FindByOwner(ctx, owner)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := r.now().UTC()
	fresh := models.Cart{
		ID:        uuid.New(),
		OwnerType: owner.Type,
		OwnerID:   owner.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
			DoNothing: true,
		}).
		Omit("Items").
		Create(&fresh).Error; err != nil {
		return nil, err
	}
	return r.FindByOwner(ctx, owner)
}

// AddQuantity accumulates quantity on the product's line, appending a new
// line at the end when the product is not yet in the cart.
func (r *Repository) AddQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	var existing int64
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Select("COALESCE(MAX(quantity), 0)").
		Scan(&existing).Error
	if err != nil {
		return err
	}
	if existing+int64(quantity) > MaxLineQuantity {
		return ErrQuantityOverflow
	}
	return r.upsertItem(ctx, cartID, productID, quantity, gorm.Expr("cart_items.quantity + excluded.quantity"))
}

// SetQuantity stores an absolute quantity, appending the line when absent.
func (r *Repository) SetQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	return r.upsertItem(ctx, cartID, productID, quantity, gorm.Expr("excluded.quantity"))
}

func (r *Repository) upsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int, onConflict clause.Expr) error {
	position, err := r.nextPosition(ctx, cartID)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	item := models.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   onConflict,
				"updated_at": now,
			}),
		}).
		Create(&item).Error
	if details, ok := pkgerrors.PostgresDetails(err); ok && details.Code == pgNumericOutOfRange {
		return ErrQuantityOverflow
	}
	return err
}

func (r *Repository) nextPosition(ctx context.Context, cartID uuid.UUID) (int, error) {
	var maxPosition int
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ?", cartID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPosition).Error
	if err != nil {
		return 0, err
	}
	return maxPosition + 1, nil
}

// DeleteItem removes the product's line; absent lines are a no-op.
func (r *Repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{}).Error
}

// DeleteItems empties the cart while keeping the cart row.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// Touch bumps the cart's last-modified timestamp.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumn("updated_at", r.now().UTC()).Error
}

// ClearByOwner empties the owner's cart if it exists.
func (r *Repository) ClearByOwner(ctx context.Context, owner identity.Owner) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.Cart
		err := tx.Select("id").
			Where("owner_type = ? AND owner_id = ?", owner.Type, owner.ID).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		scoped := &Repository{db: tx, now: r.now}
		if err := scoped.DeleteItems(ctx, record.ID); err != nil {
			return err
		}
		return scoped.Touch(ctx, record.ID)
	})
}

// ListStaleGuestCarts returns ids of guest carts untouched since cutoff.
func (r *Repository) ListStaleGuestCarts(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 500
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("owner_type = ? AND updated_at < ?", enums.CartOwnerGuest, cutoff.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteCarts removes carts and their lines.
func (r *Repository) DeleteCarts(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id IN ?", ids).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Cart{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

// ListUnclearedAfterOrder returns owners whose cart still holds lines that
// predate their latest order, i.e. a checkout whose clear step never landed.
func (r *Repository) ListUnclearedAfterOrder(ctx context.Context, limit int) ([]identity.Owner, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []struct {
		OwnerType enums.CartOwnerType
		OwnerID   string
	}
	err := r.unclearedCarts(ctx).
		Select("c.owner_type, c.owner_id").
		Order("c.updated_at ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	owners := make([]identity.Owner, 0, len(rows))
	for _, row := range rows {
		owners = append(owners, identity.Owner{Type: row.OwnerType, ID: row.OwnerID})
	}
	return owners, nil
}

// HasUnclearedOrder reports whether owner still matches ListUnclearedAfterOrder.
// Callers re-check under the owner's lock before clearing.
func (r *Repository) HasUnclearedOrder(ctx context.Context, owner identity.Owner) (bool, error) {
	var count int64
	err := r.unclearedCarts(ctx).
		Where("c.owner_type = ? AND c.owner_id = ?", owner.Type, owner.ID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) unclearedCarts(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("carts AS c").
		Where("EXISTS (SELECT 1 FROM cart_items ci WHERE ci.cart_id = c.id)").
		Where("EXISTS (SELECT 1 FROM orders o WHERE o.owner_type = c.owner_type AND o.owner_id = c.owner_id AND o.created_at > c.updated_at)")
}
