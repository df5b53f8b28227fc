// Package lock serializes mutations that share a key, such as every change to
// one worker's assignments on one day.
package lock

import "context"

// Locker hands out exclusive ownership of a key until release is called.
// Acquire blocks until the key is free or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
