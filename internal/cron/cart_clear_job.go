package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/identity"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

const cartClearBatch = 200

type unclearedCartRepo interface {
	ListUnclearedAfterOrder(ctx context.Context, limit int) ([]identity.Owner, error)
	HasUnclearedOrder(ctx context.Context, owner identity.Owner) (bool, error)
	ClearByOwner(ctx context.Context, owner identity.Owner) error
}

// CartClearJobParams configure the post-checkout clear reconciliation.
type CartClearJobParams struct {
	Logger     *logger.Logger
	Repository unclearedCartRepo
	Locker     cart.Locker
	BatchSize  int
}

// NewCartClearJob builds the job that finishes checkouts whose cart clear
// never succeeded.
func NewCartClearJob(params CartClearJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("cart locker required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = cartClearBatch
	}
	return &cartClearJob{
		logg:   params.Logger,
		repo:   params.Repository,
		locker: params.Locker,
		batch:  batch,
	}, nil
}

type cartClearJob struct {
	logg   *logger.Logger
	repo   unclearedCartRepo
	locker cart.Locker
	batch  int
}

func (j *cartClearJob) Name() string { return "cart-clear-reconcile" }

func (j *cartClearJob) Run(ctx context.Context) error {
	owners, err := j.repo.ListUnclearedAfterOrder(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list uncleared carts: %w", err)
	}

	var errs error
	cleared := 0
	for _, owner := range owners {
		ok, err := j.clearOwner(ctx, owner)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("clear %s: %w", owner.Key(), err))
			continue
		}
		if ok {
			cleared++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(owners),
		"cleared":    cleared,
	})
	j.logg.Info(logCtx, "cart clear reconciliation complete")
	return errs
}

// clearOwner re-checks under the owner's lock so lines added after the order
// are never wiped.
func (j *cartClearJob) clearOwner(ctx context.Context, owner identity.Owner) (bool, error) {
	lease, err := j.locker.Lock(ctx, owner.Key())
	if err != nil {
		return false, err
	}
	defer lease.Release()

	pending, err := j.repo.HasUnclearedOrder(ctx, owner)
	if err != nil || !pending {
		return false, err
	}
	if !lease.Held() {
		return false, cart.ErrLockLost
	}
	if err := j.repo.ClearByOwner(ctx, owner); err != nil {
		return false, err
	}
	return true, nil
}
