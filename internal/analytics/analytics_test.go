package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/outbox"
	"github.com/angelmondragon/storefront-cart/pkg/outbox/payloads"
)

var testTables = Tables{OrderEvents: "order_events", CartMerges: "cart_merges"}

func envelopeBody(t *testing.T, eventID string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func placedDelivery(t *testing.T) ([]byte, map[string]string, payloads.OrderPlacedEvent) {
	t.Helper()
	userID := uuid.New()
	city := "  Lisbon "
	placed := payloads.OrderPlacedEvent{
		OrderID:    uuid.New(),
		OwnerType:  enums.CartOwnerUser,
		OwnerID:    userID.String(),
		UserID:     &userID,
		City:       &city,
		Total:      decimal.RequireFromString("21.00"),
		TotalCount: 3,
		Items: []payloads.OrderPlacedItem{
			{ProductID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("5.25"), LineSubtotal: decimal.RequireFromString("10.50")},
			{ProductID: uuid.New(), Quantity: 1, UnitPrice: decimal.RequireFromString("10.50"), LineSubtotal: decimal.RequireFromString("10.50")},
		},
	}
	attrs := map[string]string{
		"event_type":     string(enums.EventOrderPlaced),
		"aggregate_type": string(enums.AggregateOrder),
		"aggregate_id":   placed.OrderID.String(),
	}
	return envelopeBody(t, uuid.NewString(), placed), attrs, placed
}

func TestDecodeEventReadsEnvelopeAndAttributes(t *testing.T) {
	body, attrs, placed := placedDelivery(t)

	ev, err := DecodeEvent(body, attrs)
	require.NoError(t, err)
	assert.Equal(t, enums.EventOrderPlaced, ev.Type)
	assert.Equal(t, placed.OrderID, ev.AggregateID)
	assert.Equal(t, 2026, ev.OccurredAt.Year())
	assert.NotEqual(t, uuid.Nil, ev.ID)
}

func TestDecodeEventFallsBackToAttributeEventID(t *testing.T) {
	_, attrs, placed := placedDelivery(t)
	id := uuid.New()
	attrs["event_id"] = id.String()

	ev, err := DecodeEvent(envelopeBody(t, "", placed), attrs)
	require.NoError(t, err)
	assert.Equal(t, id, ev.ID)
}

func TestDecodeEventRejectsBrokenMessages(t *testing.T) {
	body, attrs, placed := placedDelivery(t)
	cases := map[string]func() ([]byte, map[string]string){
		"not json":      func() ([]byte, map[string]string) { return []byte("nope"), attrs },
		"unknown type":  func() ([]byte, map[string]string) { return body, with(attrs, "event_type", "order_shipped") },
		"bad aggregate": func() ([]byte, map[string]string) { return body, with(attrs, "aggregate_id", "abc") },
		"bad event id":  func() ([]byte, map[string]string) { return envelopeBody(t, "evt-1", placed), attrs },
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent(build())
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func with(attrs map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	out[key] = value
	return out
}

func TestProjectOrderPlaced(t *testing.T) {
	body, attrs, placed := placedDelivery(t)
	ev, err := DecodeEvent(body, attrs)
	require.NoError(t, err)

	p, err := testTables.Project(ev)
	require.NoError(t, err)
	assert.Equal(t, "order_events", p.Table)
	assert.Equal(t, ev.ID.String(), p.InsertID)
	row, ok := p.Row.(*OrderEventRow)
	require.True(t, ok)
	assert.Equal(t, ev.ID.String(), row.EventID)
	assert.Equal(t, placed.OrderID.String(), row.OrderID)
	require.NotNil(t, row.UserID)
	assert.Equal(t, placed.UserID.String(), *row.UserID)
	require.NotNil(t, row.City)
	assert.Equal(t, "Lisbon", *row.City)
	assert.Equal(t, "21.00", row.Total.FloatString(2))
	assert.Equal(t, int64(3), row.TotalCount)
	assert.Equal(t, int64(2), row.LineCount)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(row.Items.JSONVal), &items))
	assert.Len(t, items, 2)
}

func TestProjectCartMerged(t *testing.T) {
	cartID := uuid.New()
	merged := payloads.CartMergedEvent{GuestCartID: "guest-9", UserID: uuid.New(), CartID: cartID, MovedLines: 2, MovedUnits: 5}
	ev, err := DecodeEvent(envelopeBody(t, uuid.NewString(), merged), map[string]string{
		"event_type":   string(enums.EventCartMerged),
		"aggregate_id": cartID.String(),
	})
	require.NoError(t, err)

	p, err := testTables.Project(ev)
	require.NoError(t, err)
	row, ok := p.Row.(*CartMergeRow)
	require.True(t, ok)
	assert.Equal(t, "cart_merges", p.Table)
	assert.Equal(t, "guest-9", row.GuestCartID)
	assert.Equal(t, int64(5), row.MovedUnits)

	_, err = Tables{OrderEvents: "order_events"}.Project(ev)
	assert.ErrorIs(t, err, ErrIgnored)
}

func TestProjectNullPayloadIsMalformed(t *testing.T) {
	ev := Event{ID: uuid.New(), Type: enums.EventOrderPlaced, AggregateID: uuid.New(), Data: json.RawMessage("null")}
	_, err := testTables.Project(ev)
	assert.ErrorIs(t, err, ErrMalformed)
}

type scriptedInserter struct {
	errs      []error
	tables    []string
	insertIDs []string
}

func (s *scriptedInserter) InsertRows(_ context.Context, table string, rows []any) error {
	s.tables = append(s.tables, table)
	for _, row := range rows {
		if saver, ok := row.(*cbigquery.StructSaver); ok {
			s.insertIDs = append(s.insertIDs, saver.InsertID)
		}
	}
	if len(s.tables) <= len(s.errs) {
		return s.errs[len(s.tables)-1]
	}
	return nil
}

func TestSinkRetriesTransientErrors(t *testing.T) {
	ins := &scriptedInserter{errs: []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		cbigquery.PutMultiError{{Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "backendError"}}}},
	}}
	sink, err := NewSink(ins, 3, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), Projection{Table: "order_events", InsertID: "evt-7", Row: &OrderEventRow{}}))
	assert.Equal(t, []string{"order_events", "order_events", "order_events"}, ins.tables)
	assert.Equal(t, []string{"evt-7", "evt-7", "evt-7"}, ins.insertIDs, "every attempt reuses the insert id")
}

func TestSinkStopsOnPermanentError(t *testing.T) {
	invalid := cbigquery.PutMultiError{{Errors: cbigquery.MultiError{&cbigquery.Error{Reason: "invalid"}}}}
	ins := &scriptedInserter{errs: []error{invalid}}
	sink, _ := NewSink(ins, 3, time.Millisecond)

	err := sink.Write(context.Background(), Projection{Table: "order_events", Row: &OrderEventRow{}})
	require.Error(t, err)
	assert.Len(t, ins.tables, 1)
}

func TestSinkGivesUpAfterAttempts(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "try later")
	ins := &scriptedInserter{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	sink, _ := NewSink(ins, 3, time.Millisecond)

	err := sink.Write(context.Background(), Projection{Table: "cart_merges", Row: &CartMergeRow{}})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
	assert.Len(t, ins.tables, 3)
}

type markStore struct {
	marks   map[string]time.Duration
	deleted []string
	err     error
}

func (m *markStore) Claim(_ context.Context, key, _ string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.marks[key]; ok {
		return false, nil
	}
	m.marks[key] = ttl
	return true, nil
}

func (m *markStore) Release(_ context.Context, key string) error {
	delete(m.marks, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *markStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

type recordingSink struct {
	written []Projection
	err     error
}

func (r *recordingSink) Write(_ context.Context, p Projection) error {
	if r.err != nil {
		return r.err
	}
	r.written = append(r.written, p)
	return nil
}

func newTestConsumer(t *testing.T, marks *markStore, sink *recordingSink) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerParams{
		Logger:  logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
		Marks:   marks,
		MarkTTL: time.Hour,
		Tables:  testTables,
		Sink:    sink,
	})
	require.NoError(t, err)
	return c
}

func TestConsumerRecordsEachEventOnce(t *testing.T) {
	marks := &markStore{marks: map[string]time.Duration{}}
	sink := &recordingSink{}
	c := newTestConsumer(t, marks, sink)
	body, attrs, _ := placedDelivery(t)

	assert.True(t, c.Handle(context.Background(), "m-1", body, attrs))
	assert.True(t, c.Handle(context.Background(), "m-2", body, attrs))

	assert.Len(t, sink.written, 1)
	require.Len(t, marks.marks, 1)
	for key, ttl := range marks.marks {
		assert.Contains(t, key, "evt:processed:analytics:")
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestConsumerReleasesMarkWhenInsertFails(t *testing.T) {
	marks := &markStore{marks: map[string]time.Duration{}}
	sink := &recordingSink{err: errors.New("bigquery down")}
	c := newTestConsumer(t, marks, sink)
	body, attrs, _ := placedDelivery(t)

	assert.False(t, c.Handle(context.Background(), "m-1", body, attrs))
	assert.Empty(t, marks.marks)
	assert.Len(t, marks.deleted, 1)

	sink.err = nil
	assert.True(t, c.Handle(context.Background(), "m-1", body, attrs))
	assert.Len(t, sink.written, 1)
}

func TestConsumerNacksWhenMarksUnavailable(t *testing.T) {
	marks := &markStore{marks: map[string]time.Duration{}, err: errors.New("redis down")}
	sink := &recordingSink{}
	c := newTestConsumer(t, marks, sink)
	body, attrs, _ := placedDelivery(t)

	assert.False(t, c.Handle(context.Background(), "m-1", body, attrs))
	assert.Empty(t, sink.written)
}

func TestConsumerAcksBrokenAndIgnoredMessages(t *testing.T) {
	marks := &markStore{marks: map[string]time.Duration{}}
	sink := &recordingSink{}
	c, err := NewConsumer(ConsumerParams{
		Logger: logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
		Marks:  marks,
		Tables: Tables{OrderEvents: "order_events"},
		Sink:   sink,
	})
	require.NoError(t, err)

	assert.True(t, c.Handle(context.Background(), "m-1", []byte("garbage"), nil))

	cartID := uuid.New()
	merged := envelopeBody(t, uuid.NewString(), payloads.CartMergedEvent{CartID: cartID})
	assert.True(t, c.Handle(context.Background(), "m-2", merged, map[string]string{
		"event_type":   string(enums.EventCartMerged),
		"aggregate_id": cartID.String(),
	}))

	assert.Empty(t, sink.written)
	assert.Empty(t, marks.marks, "ignored events must not take a mark")
}

func TestNewConsumerRequiresATable(t *testing.T) {
	_, err := NewConsumer(ConsumerParams{
		Logger: logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
		Marks:  &markStore{},
		Sink:   &recordingSink{},
	})
	assert.Error(t, err)
}
