// Package storage implements the ordered key-value Store abstraction
// record families are persisted under, plus the LevelDB-backed production
// implementation.
package storage

// Batch is an atomic write buffer. All operations are applied together
// via Write() or discarded together on error, preventing partial commits.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// DB is the generic ordered key-value store interface.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks key-value pairs matching a prefix, forward or in reverse.
// MarketEngine's order-book cursors require reverse iteration (stepping
// backward from one past the last key of a market pair), which the
// teacher's original forward-only iterator could not express.
type Iterator interface {
	Next() bool
	Prev() bool
	First() bool
	Last() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}
