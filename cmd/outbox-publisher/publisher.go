package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/outbox/catalog"
)

const (
	fallbackBatch       = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	sendTimeout         = 15 * time.Second
	idleCeiling         = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRows interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventChecker interface {
	Check(models.OutboxEvent) (catalog.Message, error)
}

// PublisherDeps are the collaborators of the order event publisher.
type PublisherDeps struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Transport   transport
	Rows        outboxRows
	Catalog     eventChecker
	DeadLetters deadLetters
}

// Publisher drains order_placed and cart_merged rows from the outbox onto
// the orders topic. A row that can never be delivered moves to the DLQ
// without holding back the rest of its batch.
type Publisher struct {
	deps        PublisherDeps
	batch       int
	maxAttempts int
	poll        time.Duration
	jitter      func(time.Duration) time.Duration
}

func NewPublisher(deps PublisherDeps) (*Publisher, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.DB == nil:
		return nil, errors.New("database client is required")
	case deps.Transport == nil:
		return nil, errors.New("event transport is required")
	case deps.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("event catalog is required")
	case deps.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	}

	p := &Publisher{
		deps:        deps,
		batch:       deps.Outbox.BatchSize,
		maxAttempts: deps.Outbox.MaxAttempts,
		poll:        time.Duration(deps.Outbox.PollIntervalMS) * time.Millisecond,
		jitter:      addJitter,
	}
	if p.batch <= 0 {
		p.batch = fallbackBatch
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = fallbackMaxAttempts
	}
	if p.poll <= 0 {
		p.poll = fallbackPoll
	}
	return p, nil
}

// Run polls until ctx is canceled. Empty polls and failed batches both
// stretch the wait up to idleCeiling; a full batch is followed immediately.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.deps.DB.Ping(ctx); err != nil {
		p.deps.Logger.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if err := p.deps.Transport.Ping(ctx); err != nil {
		p.deps.Logger.Error(ctx, p.deps.Transport.Name()+" ping failed", err)
		return fmt.Errorf("%s ping: %w", p.deps.Transport.Name(), err)
	}

	wait := p.poll
	for ctx.Err() == nil {
		tally, err := p.drain(ctx)
		switch {
		case err != nil:
			p.deps.Logger.Error(ctx, "outbox batch rolled back", err)
			wait = min(wait*2, idleCeiling)
		case tally.rows > 0:
			wait = p.poll
			continue
		default:
			wait = p.poll
		}
		if err := pause(ctx, p.jitter(wait)); err != nil {
			break
		}
	}
	p.deps.Logger.Info(ctx, "outbox publisher context canceled")
	return ctx.Err()
}

type outcome int

const (
	sent outcome = iota
	retryLater
	deadLettered
)

type batchTally struct {
	rows, sent, retried, dead int
}

// drain handles one locked batch inside a single transaction.
func (p *Publisher) drain(ctx context.Context) (batchTally, error) {
	var tally batchTally
	err := p.deps.DB.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := p.deps.Rows.FetchUnpublishedForPublish(tx, p.batch, p.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		tally = batchTally{rows: len(rows)}
		for _, row := range rows {
			res, err := p.settle(ctx, tx, row)
			if err != nil {
				return err
			}
			switch res {
			case sent:
				tally.sent++
			case retryLater:
				tally.retried++
			case deadLettered:
				tally.dead++
			}
		}
		return nil
	})
	if err == nil && tally.rows > 0 {
		p.deps.Logger.Info(p.deps.Logger.WithFields(ctx, map[string]any{
			"batch_rows":    tally.rows,
			"batch_sent":    tally.sent,
			"batch_retried": tally.retried,
			"batch_dlq":     tally.dead,
		}), "outbox batch committed")
	}
	return tally, err
}

// settle delivers one row and records what happened to it. Only bookkeeping
// failures are returned; delivery failures become retries or dead letters.
func (p *Publisher) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	logCtx := p.deps.Logger.WithFields(ctx, rowFields(row, p.deps.Transport.Name()))

	checked, err := p.deps.Catalog.Check(row)
	if err != nil {
		return deadLettered, p.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	logCtx = p.deps.Logger.WithFields(logCtx, map[string]any{
		"topic":       checked.Topic,
		"event_id":    checked.EventID,
		"occurred_at": checked.OccurredAt.Format(time.RFC3339Nano),
	})

	sendErr := p.send(ctx, checked.Topic, row, checked.EventID)
	switch {
	case sendErr == nil:
		if err := p.deps.Rows.MarkPublishedTx(tx, row.ID); err != nil {
			return sent, fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		p.deps.Logger.Info(logCtx, "outbox event published")
		return sent, nil
	case catalog.Undeliverable(sendErr):
		return deadLettered, p.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr)
	case row.AttemptCount+1 >= p.maxAttempts:
		exhausted := fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, sendErr)
		return deadLettered, p.deadLetter(logCtx, tx, row, enums.OutboxDLQReasonMaxAttempts, exhausted)
	}

	logCtx = p.deps.Logger.WithFields(logCtx, map[string]any{
		"next_attempt": row.AttemptCount + 2,
		"error":        sendErr.Error(),
	})
	p.deps.Logger.Warn(logCtx, "outbox publish failed, will retry")
	if err := p.deps.Rows.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return retryLater, fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	return retryLater, nil
}

// deadLetter copies the row into outbox_dlq and pins its attempt count so
// the fetch query never returns it again.
func (p *Publisher) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if err := p.deps.DeadLetters.InsertTx(tx, row.DeadLetter(reason, cause, time.Now())); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	if err := p.deps.Rows.MarkTerminalTx(tx, row.ID, cause, p.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", row.ID, err)
	}
	ctx = p.deps.Logger.WithFields(ctx, map[string]any{"dlq_reason": reason, "error": cause.Error()})
	p.deps.Logger.Warn(ctx, "outbox event moved to dlq")
	return nil
}

// send keys the message by aggregate id so every event of one order or cart
// lands on the same Kafka partition.
func (p *Publisher) send(ctx context.Context, topic string, row models.OutboxEvent, eventID string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	err := p.deps.Transport.Publish(sendCtx, topic, message{
		Key:  row.AggregateID.String(),
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if errors.Is(err, errPublisherMissing) {
		return fmt.Errorf("%w: %w for topic %s", catalog.ErrUndeliverable, err, topic)
	}
	return err
}

func rowFields(row models.OutboxEvent, transportName string) map[string]any {
	fields := map[string]any{
		"transport":      transportName,
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var jitterRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// addJitter spreads replicas polling the same table by up to a quarter of d.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterRand.Int63n(int64(d)/4+1))
}
