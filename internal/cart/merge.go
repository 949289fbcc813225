package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
	"github.com/angelmondragon/storefront-cart/pkg/outbox/payloads"
)

// MergeResult reports the user cart after a merge and how much moved.
type MergeResult struct {
	Cart       *Cart
	MovedLines int
	MovedUnits int
}

// MergeOnLogin folds the guest cart into the user cart, accumulating
// quantities per product, then clears the guest cart. An empty or absent
// guest cart is a no-op.
func (s *service) MergeOnLogin(ctx context.Context, guest, user identity.Owner) (*MergeResult, error) {
	if guest.Type != enums.CartOwnerGuest {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merge source must be a guest cart")
	}
	userID, ok := user.UserID()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merge target must be a user cart")
	}
	if err := validateOwner(guest); err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"guest_cart_id": guest.ID,
			"user_id":       user.ID,
		})
	}

	lease, err := LockOwners(ctx, s.locker, guest.Key(), user.Key())
	if err != nil {
		s.metrics.IncMutation(opMerge, metrics.OutcomeFailure)
		return nil, lockError(err)
	}
	defer lease.Release()

	result := &MergeResult{}
	var userRecord *models.Cart
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		guestRecord, err := repo.FindByOwner(ctx, guest)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if guestRecord == nil || len(guestRecord.Items) == 0 {
			userRecord, err = repo.FindByOwner(ctx, user)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		target, err := repo.Ensure(ctx, user)
		if err != nil {
			return err
		}
		for _, item := range guestRecord.Items {
			err := repo.AddQuantity(ctx, target.ID, item.ProductID, item.Quantity)
			if errors.Is(err, ErrQuantityOverflow) {
				// a login never fails over a saturated line; the merged line is capped
				err = repo.SetQuantity(ctx, target.ID, item.ProductID, MaxLineQuantity)
			}
			if err != nil {
				return fmt.Errorf("move product %s: %w", item.ProductID, err)
			}
			result.MovedLines++
			result.MovedUnits += item.Quantity
		}
		if err := repo.DeleteItems(ctx, guestRecord.ID); err != nil {
			return err
		}
		if err := repo.Touch(ctx, guestRecord.ID); err != nil {
			return err
		}
		if err := repo.Touch(ctx, target.ID); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventCartMerged,
			AggregateType: enums.AggregateCart,
			AggregateID:   target.ID,
			Actor: &outbox.Actor{
				OwnerType: user.Type,
				OwnerID:   user.ID,
				UserID:    &userID,
			},
			Data: payloads.CartMergedEvent{
				GuestCartID: guest.ID,
				UserID:      userID,
				CartID:      target.ID,
				MovedLines:  result.MovedLines,
				MovedUnits:  result.MovedUnits,
				MergedAt:    time.Now().UTC(),
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return err
		}
		if !lease.Held() {
			return ErrLockLost
		}

		userRecord, err = repo.FindByOwner(ctx, user)
		return err
	})
	if errors.Is(err, ErrLockLost) {
		s.metrics.IncMutation(opMerge, metrics.OutcomeFailure)
		return nil, lockError(err)
	}
	if err != nil {
		s.metrics.IncMutation(opMerge, metrics.OutcomeFailure)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge guest cart")
	}

	s.metrics.IncMutation(opMerge, metrics.OutcomeSuccess)
	result.Cart = fromModel(user, userRecord)
	if s.logg != nil && result.MovedLines > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"moved_lines": result.MovedLines,
			"moved_units": result.MovedUnits,
		})
		s.logg.Info(logCtx, "guest cart merged")
	}
	return result, nil
}
