package session

import (
	"sync"
	"time"

	"github.com/m3rciful/crewbot/core/logger"
	"log/slog"
)

// TimerRegistry owns per-key countdown timers with cancel-and-replace
// semantics. At most one live timer exists per key: scheduling for a key that
// already has a timer cancels the old one first, and a timer that lost the
// race to a cancel never invokes its callback.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// NewTimerRegistry constructs an empty registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[int64]*time.Timer)}
}

// Schedule cancels any existing timer for key and starts a new one. When the
// timer fires, onFire is invoked exactly once and the timer is forgotten.
func (r *TimerRegistry) Schedule(key int64, delay time.Duration, onFire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[key]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		// A stale timer that was replaced or cancelled after its goroutine
		// was already queued must not fire.
		if !r.claim(key, t) {
			return
		}
		onFire()
	})
	r.timers[key] = t
}

// claim removes the timer for key only if it is still the registered one.
func (r *TimerRegistry) claim(key int64, t *time.Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.timers[key]
	if !ok || current != t {
		return false
	}
	delete(r.timers, key)
	return true
}

// Cancel stops and forgets the timer for key. Cancelling an absent key is a
// no-op with a diagnostic log, not an error.
func (r *TimerRegistry) Cancel(key int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[key]
	if !ok {
		logger.Debug(logger.Background(), "session", "timer.cancel.absent",
			slog.Int64("user_id", key),
		)
		return
	}
	t.Stop()
	delete(r.timers, key)
}

// Len reports the number of live timers.
func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
