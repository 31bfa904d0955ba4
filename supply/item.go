package supply

import "time"

// Item is an immutable (value, fetch time) pair. FetchedAt is UnixNano.
type Item[T any] struct {
	Value     T
	FetchedAt int64
}

// Age returns how long ago the item was fetched relative to now (UnixNano).
func (it Item[T]) Age(now int64) time.Duration {
	return time.Duration(now - it.FetchedAt)
}

// Expired reports whether the item is older than ttl. An item exactly ttl old
// is still fresh.
func (it Item[T]) Expired(now int64, ttl time.Duration) bool {
	return it.Age(now) > ttl
}
