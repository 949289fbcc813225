package enums

import "fmt"

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
	AggregateCart  OutboxAggregateType = "cart"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateOrder, AggregateCart:
		return true
	}
	return false
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderPlaced OutboxEventType = "order_placed"
	EventCartMerged  OutboxEventType = "cart_merged"
)

// eventAggregates pins each event type to the only aggregate that emits it.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderPlaced: AggregateOrder,
	EventCartMerged:  AggregateCart,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type that emits e, or "" for unknown types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why a row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: the broker kept failing until the attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row itself can never be delivered.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
