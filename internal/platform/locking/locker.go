// Package locking serialises work on a shared key, either within the process or across
// instances through Redis.
package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLockTimeout reports that a lock could not be acquired before the wait budget elapsed.
	ErrLockTimeout = errors.New("locking: timed out waiting for lock")
	// ErrLockUnavailable reports that the lock backend could not be reached.
	ErrLockUnavailable = errors.New("locking: lock backend unavailable")
)

// Unlock releases a held lock. It is safe to call once.
type Unlock func(ctx context.Context) error

// Locker acquires exclusive locks keyed by name.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// OrderKey is the lock key used for per-order serialisation.
func OrderKey(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// CartKey is the lock key used while a user's cart is turned into an order.
func CartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// KeyedMutex is an in-process Locker. Entries are reference counted and dropped when unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.ch
			m.release(key, entry)
		})
		return nil
	}, nil
}

// Size reports the number of keys currently tracked.
func (m *KeyedMutex) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *KeyedMutex) release(key string, entry *keyedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
}
