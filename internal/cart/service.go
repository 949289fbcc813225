package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
)

const (
	opAdd    = "add"
	opUpdate = "update"
	opRemove = "remove"
	opClear  = "clear"
	opMerge  = "merge"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the cart store operations keyed by owner.
type Service interface {
	GetCart(ctx context.Context, owner identity.Owner) (*Cart, error)
	AddItem(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*Cart, error)
	UpdateQuantity(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, owner identity.Owner) (*Cart, error)
	MergeOnLogin(ctx context.Context, guest, user identity.Owner) (*MergeResult, error)
}

type service struct {
	repo    CartRepository
	tx      txRunner
	locker  Locker
	events  outbox.Emitter
	metrics *metrics.CartMetrics
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, locker Locker, events outbox.Emitter, m *metrics.CartMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if locker == nil {
		return nil, fmt.Errorf("cart locker required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		locker:  locker,
		events:  events,
		metrics: m,
		logg:    logg,
	}, nil
}

// GetCart returns the owner's cart, or an empty unpersisted cart when none exists.
func (s *service) GetCart(ctx context.Context, owner identity.Owner) (*Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	record, err := s.repo.FindByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptyCart(owner), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return fromModel(owner, record), nil
}

func (s *service) AddItem(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*Cart, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		s.metrics.IncMutation(opAdd, metrics.OutcomeInvalid)
		return nil, invalidQuantity(quantity)
	}
	return s.mutate(ctx, owner, opAdd, true, func(ctx context.Context, repo CartRepository, record *models.Cart) error {
		return repo.AddQuantity(ctx, record.ID, productID, quantity)
	})
}

// UpdateQuantity sets an absolute quantity. Zero or below removes the line.
func (s *service) UpdateQuantity(ctx context.Context, owner identity.Owner, productID uuid.UUID, quantity int) (*Cart, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return s.mutate(ctx, owner, opUpdate, false, func(ctx context.Context, repo CartRepository, record *models.Cart) error {
			return repo.DeleteItem(ctx, record.ID, productID)
		})
	}
	return s.mutate(ctx, owner, opUpdate, true, func(ctx context.Context, repo CartRepository, record *models.Cart) error {
		return repo.SetQuantity(ctx, record.ID, productID, quantity)
	})
}

func (s *service) RemoveItem(ctx context.Context, owner identity.Owner, productID uuid.UUID) (*Cart, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, owner, opRemove, false, func(ctx context.Context, repo CartRepository, record *models.Cart) error {
		return repo.DeleteItem(ctx, record.ID, productID)
	})
}

func (s *service) Clear(ctx context.Context, owner identity.Owner) (*Cart, error) {
	return s.mutate(ctx, owner, opClear, false, func(ctx context.Context, repo CartRepository, record *models.Cart) error {
		return repo.DeleteItems(ctx, record.ID)
	})
}

type applyFunc func(ctx context.Context, repo CartRepository, record *models.Cart) error

// mutate runs apply under the owner's lock and one transaction, then returns
// the post-mutation cart. When create is false and the owner has no cart the
// mutation is a no-op on an empty cart.
func (s *service) mutate(ctx context.Context, owner identity.Owner, op string, create bool, apply applyFunc) (*Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithOwner(ctx, string(owner.Type), owner.ID)
	}

	lease, err := s.locker.Lock(ctx, owner.Key())
	if err != nil {
		s.metrics.IncMutation(op, metrics.OutcomeFailure)
		return nil, lockError(err)
	}
	defer lease.Release()

	var result *models.Cart
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := loadForMutation(ctx, repo, owner, create)
		if err != nil || record == nil {
			return err
		}
		if err := apply(ctx, repo, record); err != nil {
			return err
		}
		if err := repo.Touch(ctx, record.ID); err != nil {
			return err
		}
		if !lease.Held() {
			return ErrLockLost
		}
		result, err = repo.FindByOwner(ctx, owner)
		return err
	})
	if errors.Is(err, ErrLockLost) {
		s.metrics.IncMutation(op, metrics.OutcomeFailure)
		return nil, lockError(err)
	}
	if errors.Is(err, ErrQuantityOverflow) {
		s.metrics.IncMutation(op, metrics.OutcomeInvalid)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidQuantity, err, "quantity would exceed the per-line limit").
			WithDetails(map[string]any{"field": "quantity", "max": MaxLineQuantity})
	}
	if err != nil {
		s.metrics.IncMutation(op, metrics.OutcomeFailure)
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "op", op), "cart mutation failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("cart %s", op))
	}

	s.metrics.IncMutation(op, metrics.OutcomeSuccess)
	return fromModel(owner, result), nil
}

func loadForMutation(ctx context.Context, repo CartRepository, owner identity.Owner, create bool) (*models.Cart, error) {
	if create {
		return repo.Ensure(ctx, owner)
	}
	record, err := repo.FindByOwner(ctx, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return record, err
}

func validateOwner(owner identity.Owner) error {
	if err := owner.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart owner")
	}
	return nil
}

func validateProductID(productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.Field("productId", "is required")
	}
	return nil
}

func invalidQuantity(quantity int) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be a positive integer").
		WithDetails(map[string]any{"field": "quantity", "value": quantity})
}

func lockError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart is busy, retry shortly")
}
