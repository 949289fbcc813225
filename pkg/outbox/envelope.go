package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// EnvelopeVersion is the layout Emit writes and consumers accept.
const EnvelopeVersion = 1

// Actor is the cart owner behind an event.
type Actor struct {
	OwnerType enums.CartOwnerType `json:"ownerType"`
	OwnerID   string              `json:"ownerId"`
	UserID    *uuid.UUID          `json:"userId,omitempty"`
}

// Envelope is the payload column of outbox_events and the body of every
// published message. Data holds the event-specific JSON.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// OpenEnvelope decodes raw and rejects layouts other than EnvelopeVersion.
func OpenEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return Envelope{}, fmt.Errorf("envelope version %d not supported", env.Version)
	}
	return env, nil
}
