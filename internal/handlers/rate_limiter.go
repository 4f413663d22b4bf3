package handlers

import (
	"strings"
	"sync"
	"time"

	domain "github.com/webshop/api/internal/domain"
)

// loginThrottle caps login attempts per role and login name within a fixed window.
type loginThrottle struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu       sync.Mutex
	attempts map[string]loginAttempts
}

type loginAttempts struct {
	count int
	reset time.Time
}

func newLoginThrottle(limit int, window time.Duration, clock func() time.Time) *loginThrottle {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &loginThrottle{
		limit:    limit,
		window:   window,
		clock:    clock,
		attempts: make(map[string]loginAttempts),
	}
}

func loginThrottleKey(role domain.Role, login string) string {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		login = "anonymous"
	}
	return string(role) + ":" + login
}

// Allow records an attempt and reports whether it may proceed. When it may not, the returned
// duration is the time left until the window resets.
func (t *loginThrottle) Allow(role domain.Role, login string) (bool, time.Duration) {
	if t == nil {
		return true, 0
	}
	key := loginThrottleKey(role, login)
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.attempts[key]
	if !ok || now.After(entry.reset) {
		t.attempts[key] = loginAttempts{count: 1, reset: now.Add(t.window)}
		t.pruneExpiredLocked(now)
		return true, 0
	}
	if entry.count >= t.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	t.attempts[key] = entry
	return true, 0
}

// Succeeded clears the attempts of a login that just authenticated.
func (t *loginThrottle) Succeeded(role domain.Role, login string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.attempts, loginThrottleKey(role, login))
	t.mu.Unlock()
}

func (t *loginThrottle) pruneExpiredLocked(now time.Time) {
	for key, entry := range t.attempts {
		if now.After(entry.reset) {
			delete(t.attempts, key)
		}
	}
}
