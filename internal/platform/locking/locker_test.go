package locking

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), OrderKey(1))
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := active.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			_ = unlock(context.Background())
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen.Load())
	}
	if m.Size() != 0 {
		t.Fatalf("expected entries to be dropped, got %d", m.Size())
	}
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), OrderKey(1))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	other, err := m.Lock(ctx, OrderKey(2))
	if err != nil {
		t.Fatalf("expected independent key to lock, got %v", err)
	}
	_ = other(context.Background())
}

func TestKeyedMutexTimesOut(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	_ = unlock(context.Background())
	_ = unlock(context.Background())
	if m.Size() != 0 {
		t.Fatalf("expected entries to be dropped, got %d", m.Size())
	}
}

func TestRedisLockerReportsUnreachableBackend(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, WithWait(100*time.Millisecond))
	if _, err := locker.Lock(context.Background(), OrderKey(1)); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("expected ErrLockUnavailable, got %v", err)
	}
}

func TestRedisLockerIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, WithTTL(time.Second), WithWait(100*time.Millisecond))
	ctx := context.Background()
	key := OrderKey(time.Now().UnixNano())

	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := locker.Lock(ctx, key); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected second lock to time out, got %v", err)
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := unlock(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected double release to report a lost lock, got %v", err)
	}

	again, err := locker.Lock(ctx, key)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	_ = again(ctx)
}
