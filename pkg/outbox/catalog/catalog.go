// Package catalog lists the outbox events the publisher may put on the wire
// and checks each row against its entry before it is sent.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
	"github.com/angelmondragon/storefront-cart/pkg/outbox/payloads"
)

// ErrUndeliverable marks rows that will fail the same way on every attempt.
var ErrUndeliverable = errors.New("undeliverable outbox event")

// Undeliverable reports whether retrying err is pointless.
func Undeliverable(err error) bool {
	return errors.Is(err, ErrUndeliverable)
}

func undeliverable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUndeliverable, fmt.Sprintf(format, args...))
}

// payloadFor builds the typed destination for each publishable event.
var payloadFor = map[enums.OutboxEventType]func() any{
	enums.EventOrderPlaced: func() any { return &payloads.OrderPlacedEvent{} },
	enums.EventCartMerged:  func() any { return &payloads.CartMergedEvent{} },
}

// Message is an outbox row that passed its checks.
type Message struct {
	Topic      string
	EventID    string
	OccurredAt time.Time
	Payload    any
}

// Catalog sends every known event to one topic.
type Catalog struct {
	topic string
}

func New(topic string) (*Catalog, error) {
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}
	return &Catalog{topic: topic}, nil
}

// Check decodes the row's envelope and typed payload. Every failure wraps
// ErrUndeliverable since the stored bytes never change between attempts.
func (c *Catalog) Check(row models.OutboxEvent) (Message, error) {
	newPayload, ok := payloadFor[row.EventType]
	switch {
	case !ok:
		return Message{}, undeliverable("unsupported event type %s", row.EventType)
	case row.EventType.Aggregate() != row.AggregateType:
		return Message{}, undeliverable("aggregate mismatch: %s carries %s, want %s", row.EventType, row.AggregateType, row.EventType.Aggregate())
	case row.AggregateID == uuid.Nil:
		return Message{}, undeliverable("%s has no aggregate id", row.EventType)
	}

	envelope, err := outbox.OpenEnvelope(row.Payload)
	if err != nil {
		return Message{}, undeliverable("%s: %v", row.EventType, err)
	}
	if envelope.EventID == "" {
		return Message{}, undeliverable("envelope has no event id")
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Message{}, undeliverable("%s has no payload", row.EventType)
	}

	payload := newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return Message{}, undeliverable("%s payload: %v", row.EventType, err)
	}
	return Message{
		Topic:      c.topic,
		EventID:    envelope.EventID,
		OccurredAt: envelope.OccurredAt,
		Payload:    payload,
	}, nil
}
