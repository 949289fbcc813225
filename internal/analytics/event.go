// Package analytics projects order and cart events from the orders
// subscription into BigQuery.
package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
)

// ErrMalformed marks messages that can never be decoded. They are acked and dropped.
var ErrMalformed = errors.New("malformed analytics message")

// Event is one outbox message as delivered by the publisher.
type Event struct {
	ID          uuid.UUID
	Type        enums.OutboxEventType
	AggregateID uuid.UUID
	OccurredAt  time.Time
	Data        json.RawMessage
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// DecodeEvent reads the envelope body and the routing attributes the
// publisher sets on every message.
func DecodeEvent(body []byte, attrs map[string]string) (Event, error) {
	envelope, err := outbox.OpenEnvelope(body)
	if err != nil {
		return Event{}, malformed("%v", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(attrs["event_type"]))
	if err != nil {
		return Event{}, malformed("event_type: %v", err)
	}
	aggregateID, err := uuid.Parse(strings.TrimSpace(attrs["aggregate_id"]))
	if err != nil {
		return Event{}, malformed("aggregate_id: %v", err)
	}

	rawID := strings.TrimSpace(envelope.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(attrs["event_id"])
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return Event{}, malformed("event id %q", rawID)
	}

	occurred := envelope.OccurredAt
	if occurred.IsZero() {
		if ts, err := time.Parse(time.RFC3339Nano, attrs["created_at"]); err == nil {
			occurred = ts
		}
	}
	return Event{
		ID:          eventID,
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  occurred.UTC(),
		Data:        envelope.Data,
	}, nil
}
