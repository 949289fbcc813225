package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultInsertAttempts = 3
	defaultInsertBackoff  = 250 * time.Millisecond
	maxInsertBackoff      = 2 * time.Second
)

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Sink streams projections into BigQuery one row at a time. A message is
// only acked after its row is stored, so rows are never buffered.
type Sink struct {
	client   rowInserter
	attempts uint64
	backoff  time.Duration
}

func NewSink(client rowInserter, attempts int, backoff time.Duration) (*Sink, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if attempts <= 0 {
		attempts = defaultInsertAttempts
	}
	if backoff <= 0 {
		backoff = defaultInsertBackoff
	}
	return &Sink{client: client, attempts: uint64(attempts), backoff: backoff}, nil
}

// Write inserts the row, retrying only errors BigQuery reports as transient.
func (s *Sink) Write(ctx context.Context, p Projection) error {
	policy := retry.WithCappedDuration(maxInsertBackoff,
		retry.WithMaxRetries(s.attempts-1, retry.NewExponential(s.backoff)))

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		row := &cbigquery.StructSaver{InsertID: p.InsertID, Struct: p.Row}
		err := s.client.InsertRows(ctx, p.Table, []any{row})
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", p.Table, err)
	}
	return nil
}

func transient(err error) bool {
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		if len(rows) == 0 {
			return false
		}
		for _, row := range rows {
			if len(row.Errors) == 0 {
				return false
			}
			for _, cause := range row.Errors {
				if !transient(cause) {
					return false
				}
			}
		}
		return true
	}

	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) {
		switch bqErr.Reason {
		case "backendError", "internalError", "rateLimitExceeded", "timeout":
			return true
		}
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests ||
			apiErr.Code == http.StatusRequestTimeout ||
			apiErr.Code >= http.StatusInternalServerError
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
