package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// DomainEvent is what a service hands to Emit. AggregateType may be left
// empty; it is derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *Actor
	Data          any
	OccurredAt    time.Time
}

// Emitter appends domain events inside a caller-owned transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type Service struct {
	repo inserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes event to outbox_events with tx, so the row commits or rolls
// back with the caller's own writes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row, err := s.row(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"outbox_id":    row.ID.String(),
			"event_type":   row.EventType,
			"aggregate_id": row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) row(event DomainEvent) (models.OutboxEvent, error) {
	aggregate := event.EventType.Aggregate()
	switch {
	case aggregate == "":
		return models.OutboxEvent{}, fmt.Errorf("unknown event type %q", event.EventType)
	case event.AggregateType != "" && event.AggregateType != aggregate:
		return models.OutboxEvent{}, fmt.Errorf("%s is emitted by %s, not %s", event.EventType, aggregate, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return models.OutboxEvent{}, fmt.Errorf("%s needs an aggregate id", event.EventType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s payload: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	body, err := json.Marshal(Envelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: aggregate,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, nil
}
