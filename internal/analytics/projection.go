package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/outbox/payloads"
)

// ErrIgnored is returned for event types analytics does not record.
var ErrIgnored = errors.New("event not recorded by analytics")

// OrderEventRow mirrors the order_events table.
type OrderEventRow struct {
	EventID    string             `bigquery:"event_id"`
	EventType  string             `bigquery:"event_type"`
	OccurredAt time.Time          `bigquery:"occurred_at"`
	OrderID    string             `bigquery:"order_id"`
	OwnerType  string             `bigquery:"owner_type"`
	OwnerID    string             `bigquery:"owner_id"`
	UserID     *string            `bigquery:"user_id"`
	City       *string            `bigquery:"city"`
	Total      *big.Rat           `bigquery:"total"`
	TotalCount int64              `bigquery:"total_count"`
	LineCount  int64              `bigquery:"line_count"`
	Items      cbigquery.NullJSON `bigquery:"items"`
}

// CartMergeRow mirrors the cart_merges table: one row per guest cart
// folded into a user cart at login.
type CartMergeRow struct {
	EventID     string    `bigquery:"event_id"`
	OccurredAt  time.Time `bigquery:"occurred_at"`
	CartID      string    `bigquery:"cart_id"`
	UserID      string    `bigquery:"user_id"`
	GuestCartID string    `bigquery:"guest_cart_id"`
	MovedLines  int64     `bigquery:"moved_lines"`
	MovedUnits  int64     `bigquery:"moved_units"`
}

// Projection is a row bound for one table. InsertID feeds BigQuery's
// streaming dedupe so a retried insert does not double count.
type Projection struct {
	Table    string
	InsertID string
	Row      any
}

// Tables names the destination of each projection. An empty name switches
// that projection off.
type Tables struct {
	OrderEvents string
	CartMerges  string
}

// Project turns an event into its analytics row. Undecodable payloads wrap
// ErrMalformed; types without a table return ErrIgnored.
func (t Tables) Project(ev Event) (Projection, error) {
	switch {
	case ev.Type == enums.EventOrderPlaced && t.OrderEvents != "":
		var placed payloads.OrderPlacedEvent
		if err := decodeData(ev, &placed); err != nil {
			return Projection{}, err
		}
		row, err := orderRow(ev, placed)
		if err != nil {
			return Projection{}, err
		}
		return Projection{Table: t.OrderEvents, InsertID: ev.ID.String(), Row: &row}, nil
	case ev.Type == enums.EventCartMerged && t.CartMerges != "":
		var merged payloads.CartMergedEvent
		if err := decodeData(ev, &merged); err != nil {
			return Projection{}, err
		}
		row := mergeRow(ev, merged)
		return Projection{Table: t.CartMerges, InsertID: ev.ID.String(), Row: &row}, nil
	}
	return Projection{}, fmt.Errorf("%w: %s", ErrIgnored, ev.Type)
}

func decodeData(ev Event, dest any) error {
	if len(ev.Data) == 0 || string(ev.Data) == "null" {
		return malformed("%s has no payload", ev.Type)
	}
	if err := json.Unmarshal(ev.Data, dest); err != nil {
		return malformed("%s payload: %v", ev.Type, err)
	}
	return nil
}

func orderRow(ev Event, placed payloads.OrderPlacedEvent) (OrderEventRow, error) {
	items, err := json.Marshal(placed.Items)
	if err != nil {
		return OrderEventRow{}, fmt.Errorf("encode items: %w", err)
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = placed.PlacedAt.UTC()
	}
	row := OrderEventRow{
		EventID:    ev.ID.String(),
		EventType:  string(ev.Type),
		OccurredAt: occurred,
		OrderID:    placed.OrderID.String(),
		OwnerType:  string(placed.OwnerType),
		OwnerID:    placed.OwnerID,
		City:       trimmed(placed.City),
		Total:      placed.Total.Rat(),
		TotalCount: int64(placed.TotalCount),
		LineCount:  int64(len(placed.Items)),
		Items:      cbigquery.NullJSON{Valid: true, JSONVal: string(items)},
	}
	if placed.UserID != nil {
		id := placed.UserID.String()
		row.UserID = &id
	}
	return row, nil
}

func mergeRow(ev Event, merged payloads.CartMergedEvent) CartMergeRow {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = merged.MergedAt.UTC()
	}
	return CartMergeRow{
		EventID:     ev.ID.String(),
		OccurredAt:  occurred,
		CartID:      merged.CartID.String(),
		UserID:      merged.UserID.String(),
		GuestCartID: merged.GuestCartID,
		MovedLines:  int64(merged.MovedLines),
		MovedUnits:  int64(merged.MovedUnits),
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
