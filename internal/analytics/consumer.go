package analytics

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

const markScope = "evt:processed:analytics"

type processedMarks interface {
	Claim(ctx context.Context, key, marker string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	IdempotencyKey(scope, id string) string
}

type rowWriter interface {
	Write(ctx context.Context, p Projection) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type ConsumerParams struct {
	Logger  *logger.Logger
	Marks   processedMarks
	MarkTTL time.Duration
	Tables  Tables
	Sink    rowWriter
}

// Consumer records each event at most once per mark TTL. Pub/Sub delivers
// at least once, so the redis mark is taken before the insert and dropped
// again when the insert fails.
type Consumer struct {
	logg    *logger.Logger
	marks   processedMarks
	markTTL time.Duration
	tables  Tables
	sink    rowWriter
}

func NewConsumer(p ConsumerParams) (*Consumer, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.Marks == nil:
		return nil, errors.New("processed mark store is required")
	case p.Sink == nil:
		return nil, errors.New("analytics sink is required")
	case p.Tables == (Tables{}):
		return nil, errors.New("at least one analytics table is required")
	case p.MarkTTL < 0:
		return nil, errors.New("mark ttl must be non-negative")
	}
	return &Consumer{logg: p.Logger, marks: p.Marks, markTTL: p.MarkTTL, tables: p.Tables, sink: p.Sink}, nil
}

// Run receives until ctx ends.
func (c *Consumer) Run(ctx context.Context, sub receiver) error {
	return sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if c.Handle(ctx, msg.ID, msg.Data, msg.Attributes) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Handle processes one delivery and reports whether it should be acked.
// Broken or ignored messages are acked so they stop redelivering.
func (c *Consumer) Handle(ctx context.Context, messageID string, body []byte, attrs map[string]string) bool {
	ctx = c.logg.WithField(ctx, "message_id", messageID)

	ev, err := DecodeEvent(body, attrs)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping analytics message")
		return true
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":     ev.ID.String(),
		"event_type":   ev.Type,
		"aggregate_id": ev.AggregateID.String(),
	})

	projection, err := c.tables.Project(ev)
	switch {
	case errors.Is(err, ErrIgnored):
		c.logg.Debug(ctx, "event type not recorded")
		return true
	case err != nil:
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping analytics message")
		return true
	}

	key := c.marks.IdempotencyKey(markScope, ev.ID.String())
	fresh, err := c.marks.Claim(ctx, key, "1", c.markTTL)
	if err != nil {
		c.logg.Error(ctx, "processed mark unavailable", err)
		return false
	}
	if !fresh {
		c.logg.Info(ctx, "event already recorded")
		return true
	}

	if err := c.sink.Write(ctx, projection); err != nil {
		c.logg.Error(ctx, "analytics insert failed", err)
		if err := c.marks.Release(context.WithoutCancel(ctx), key); err != nil {
			c.logg.Error(ctx, "release processed mark", err)
		}
		return false
	}
	c.logg.Info(c.logg.WithField(ctx, "table", projection.Table), "analytics row recorded")
	return true
}
