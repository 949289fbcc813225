package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/metrics"
)

const (
	defaultOutboxRetention = 7 * 24 * time.Hour
	outboxRetentionBatch   = 500
)

type publishedOutbox interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedOutbox
	Metrics    *metrics.JobMetrics
	Retention  time.Duration
	BatchSize  int
}

// NewOutboxRetentionJob prunes published outbox rows older than the
// retention and reports the unpublished backlog. Unpublished rows are never
// deleted.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.batch <= 0 {
		job.batch = outboxRetentionBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      publishedOutbox
	metrics   *metrics.JobMetrics
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := purge(ctx, func(ctx context.Context) (int64, bool, error) {
		n, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batch)
		return n, n >= int64(j.batch), err
	})
	j.metrics.Rows(j.Name(), deleted)
	if err != nil {
		return fmt.Errorf("pruning published events: %w", err)
	}

	pending, err := j.repo.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("counting pending events: %w", err)
	}
	j.metrics.OutboxPending(pending)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
		"pending":      pending,
	}), "outbox retention complete")
	return nil
}
