package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
)

// Repository stores shopper accounts. Emails are kept lower-cased, and
// lookups fold case as well so legacy mixed-case rows still match.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, dto NewUser) (*models.User, error) {
	user := dto.Row(time.Now())
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail returns gorm.ErrRecordNotFound when no account matches.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "lower(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) first(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(where, arg).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// RecordLogin stamps last_login_at. A non-empty rehash replaces the stored
// password hash in the same statement.
func (r *Repository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time, rehash string) error {
	changes := map[string]any{"last_login_at": at}
	if rehash != "" {
		changes["password_hash"] = rehash
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumns(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
