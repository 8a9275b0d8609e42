package storage

import (
	"errors"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/scrypster/alphalite/pkg/types"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrIOFailure indicates that the engine could not read or write a
	// record. The in-store state is that of the last successful write.
	ErrIOFailure = errors.New("storage I/O failure")

	// ErrInvalidInput indicates a record that violates its invariants.
	ErrInvalidInput = types.ErrInvalid
)

// Setting keys used by the core.
const (
	SettingEmbeddingDimension = "embedding_dimension"
	SettingEmbeddingModel     = "embedding_model"
)

// ListOptions narrows and orders a List call. The zero value lists every
// record in insertion order.
type ListOptions[T any] struct {
	// Where keeps only records for which it returns true. Nil keeps all.
	Where func(*T) bool

	// OrderBy compares two records cmp-style (negative when a sorts first).
	// The sort is stable, so equal records keep insertion order.
	OrderBy func(a, b *T) int

	// Limit caps the number of records returned. Zero or negative means no limit.
	Limit int
}

// Apply filters, orders and truncates records in place and returns the result.
// Engines that cannot push the options down call it on their scan output.
func (o ListOptions[T]) Apply(records []*T) []*T {
	if o.Where != nil {
		records = slices.DeleteFunc(records, func(r *T) bool { return !o.Where(r) })
	}
	if o.OrderBy != nil {
		slices.SortStableFunc(records, o.OrderBy)
	}
	if o.Limit > 0 && len(records) > o.Limit {
		records = records[:o.Limit]
	}
	return records
}

// IOError wraps an engine error as ErrIOFailure, keeping the driver error in
// the message and the record coordinates as values.
func IOError(err error, op string, kind types.Kind, id string) error {
	return goerr.Wrap(errors.Join(ErrIOFailure, err), op,
		goerr.V("kind", kind), goerr.V("id", id))
}

// NotFound returns ErrNotFound annotated with the record coordinates.
func NotFound(kind types.Kind, id string) error {
	return goerr.Wrap(ErrNotFound, string(kind)+" not found", goerr.V("id", id))
}

// Invalid wraps a validation failure with the record kind.
func Invalid(err error, kind types.Kind) error {
	return goerr.Wrap(err, "invalid "+string(kind))
}
