package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a loggable snapshot of an error and everything it wraps.
type ErrorDump struct {
	TopMessage string     `json:"top_message"`
	Code       Code       `json:"code,omitempty"`
	Chain      []string   `json:"chain,omitempty"`
	Postgres   *PGDetails `json:"postgres,omitempty"`
}

// PGDetails carries the postgres fields shared by pgx and lib/pq errors.
type PGDetails struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// LogFields flattens the details into pg_* log fields, skipping blanks.
func (p PGDetails) LogFields() map[string]any {
	fields := make(map[string]any, 4)
	for key, value := range map[string]string{
		"pg_code":       p.Code,
		"pg_constraint": p.Constraint,
		"pg_table":      p.Table,
		"pg_column":     p.Column,
		"pg_detail":     p.Detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// PostgresDetails extracts driver-level details from either postgres driver.
func PostgresDetails(err error) (PGDetails, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PGDetails{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PGDetails{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return PGDetails{}, false
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := PostgresDetails(err); ok {
		d.Postgres = &pg
	}
	return d
}
