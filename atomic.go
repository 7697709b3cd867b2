package social

import (
	"time"
)

// AtomicResult reports the outcome of an atomic upsert: whether the row
// was created fresh or an existing one was modified, and when.
type AtomicResult[T any] struct {
	Entity     T
	Created    bool
	ModifiedAt time.Time
}

func NewAtomicResult[T any](entity T, created bool) *AtomicResult[T] {
	return &AtomicResult[T]{Entity: entity, Created: created, ModifiedAt: time.Now()}
}
