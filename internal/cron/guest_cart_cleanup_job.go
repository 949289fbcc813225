package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

const (
	defaultGuestCartTTL = 30 * 24 * time.Hour
	guestCleanupBatch   = 500
)

type staleGuestCartRepo interface {
	ListStaleGuestCarts(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	DeleteCarts(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type GuestCartCleanupJobParams struct {
	Logger     *logger.Logger
	Repository staleGuestCartRepo
	Metrics    *metrics.JobMetrics
	TTL        time.Duration
	BatchSize  int
}

// NewGuestCartCleanupJob builds the job that deletes abandoned guest carts.
// User carts are never removed.
func NewGuestCartCleanupJob(params GuestCartCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("cart repository required")
	}
	job := &guestCartCleanupJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
		ttl:     params.TTL,
		batch:   params.BatchSize,
		now:     time.Now,
	}
	if job.ttl <= 0 {
		job.ttl = defaultGuestCartTTL
	}
	if job.batch <= 0 {
		job.batch = guestCleanupBatch
	}
	return job, nil
}

type guestCartCleanupJob struct {
	logg    *logger.Logger
	repo    staleGuestCartRepo
	metrics *metrics.JobMetrics
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func (j *guestCartCleanupJob) Name() string { return "guest-cart-cleanup" }

func (j *guestCartCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	deleted, err := purge(ctx, func(ctx context.Context) (int64, bool, error) {
		ids, err := j.repo.ListStaleGuestCarts(ctx, cutoff, j.batch)
		if err != nil {
			return 0, false, fmt.Errorf("list stale guest carts: %w", err)
		}
		if len(ids) == 0 {
			return 0, false, nil
		}
		n, err := j.repo.DeleteCarts(ctx, ids)
		if err != nil {
			return n, false, fmt.Errorf("delete stale guest carts: %w", err)
		}
		return n, len(ids) >= j.batch, nil
	})
	j.metrics.Rows(j.Name(), deleted)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"carts_deleted": deleted,
	}), "guest cart cleanup complete")
	return nil
}
