package store

import "context"

// Store defines the persistence backend for processed telemetry
// records. It abstracts over Postgres (durable) and the in-memory
// store used for tests and single-node dev mode.
//
// Lookups for an absent id return (nil, nil); callers map that to a
// not-found response.
type Store interface {
	// CreateRecords persists a batch in input order and assigns ids.
	// The batch is atomic: if any record fails, none are persisted.
	CreateRecords(ctx context.Context, records []*ProcessedRecord) error

	GetRecord(ctx context.Context, id int64) (*ProcessedRecord, error)
	ListRecords(ctx context.Context) ([]*ProcessedRecord, error)

	// UpdateRecord replaces all mutable fields of the record with the
	// given id and returns the updated row.
	UpdateRecord(ctx context.Context, id int64, rec *ProcessedRecord) (*ProcessedRecord, error)

	// DeleteRecord removes the record and returns it as it existed
	// prior to deletion.
	DeleteRecord(ctx context.Context, id int64) (*ProcessedRecord, error)
}
