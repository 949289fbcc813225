package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/pagination"
)

// Service reads orders on behalf of their owner and applies fulfillment
// status transitions.
type Service interface {
	List(ctx context.Context, owner identity.Owner, params ListParams) (*ListResult, error)
	Get(ctx context.Context, owner identity.Owner, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next enums.OrderStatus) (*Order, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) List(ctx context.Context, owner identity.Owner, params ListParams) (*ListResult, error) {
	if err := owner.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order owner")
	}

	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListByOwner(ctx, owner, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	result := &ListResult{Orders: make([]Order, 0, len(rows))}
	for i := range rows {
		result.Orders = append(result.Orders, *FromModel(&rows[i]))
	}
	if next != nil {
		result.NextCursor = next.Encode()
	}
	return result, nil
}

// Get returns the order when owner placed it. Orders of other owners are
// reported as not found.
func (s *service) Get(ctx context.Context, owner identity.Owner, id uuid.UUID) (*Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.Field("orderId", "is required")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !ownedBy(record.OwnerType, record.OwnerID, record.UserID, owner) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return FromModel(record), nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, next enums.OrderStatus) (*Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.Field("orderId", "is required")
	}
	if !next.IsValid() {
		return nil, pkgerrors.Field("status", "is invalid")
	}

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if record.Status == next {
		return FromModel(record), nil
	}
	if !record.Status.CanTransitionTo(next) {
		return nil, transitionError(record.Status, next)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, record.Status, next)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if !updated {
		// lost a race with another transition
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		if current.Status == next {
			return FromModel(current), nil
		}
		return nil, transitionError(current.Status, next)
	}

	record.Status = next
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, id.String())
		logCtx = s.logg.WithField(logCtx, "status", next.String())
		s.logg.Info(logCtx, "order status updated")
	}
	return FromModel(record), nil
}

func ownedBy(ownerType enums.CartOwnerType, ownerID string, userID *uuid.UUID, owner identity.Owner) bool {
	if ownerType == owner.Type && ownerID == owner.ID {
		return true
	}
	if caller, ok := owner.UserID(); ok && userID != nil {
		return *userID == caller
	}
	return false
}

func transitionError(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").WithDetails(map[string]any{
		"from": from,
		"to":   to,
	})
}
