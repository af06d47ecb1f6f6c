package session

import (
	"sync"
	"time"

	"github.com/m3rciful/crewbot/core/logger"
	"log/slog"
)

type entry[S any] struct {
	data      S
	createdAt time.Time
}

// Store is a keyed in-memory table of session records with automatic expiry.
// Exactly one session exists per user key at any instant; Create for an
// existing key tears the old session down (including its timer) first.
type Store[S any] struct {
	mu       sync.RWMutex
	sessions map[int64]*entry[S]
	timers   *TimerRegistry
	ttl      time.Duration
	name     string
	onExpire func(userID int64, s S)
}

// Option customises a Store.
type Option[S any] func(*Store[S])

// WithOnExpire registers a callback invoked after a session is removed by
// timeout. It runs outside the store lock.
func WithOnExpire[S any](fn func(userID int64, s S)) Option[S] {
	return func(st *Store[S]) { st.onExpire = fn }
}

// NewStore constructs a session store. The name scopes log output, ttl is the
// inactivity timeout applied on create and reset on every update.
func NewStore[S any](name string, ttl time.Duration, opts ...Option[S]) *Store[S] {
	st := &Store[S]{
		sessions: make(map[int64]*entry[S]),
		timers:   NewTimerRegistry(),
		ttl:      ttl,
		name:     name,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Create unconditionally replaces any existing session for userID and
// schedules the expiry timer. It always succeeds.
func (st *Store[S]) Create(userID int64, s S) {
	st.mu.Lock()
	if _, ok := st.sessions[userID]; ok {
		st.timers.Cancel(userID)
		logger.Debug(logger.Background(), st.name, "session.replaced",
			slog.Int64("user_id", userID),
		)
	}
	st.sessions[userID] = &entry[S]{data: s, createdAt: time.Now()}
	st.mu.Unlock()

	st.timers.Schedule(userID, st.ttl, func() { st.expire(userID) })
}

// Get returns a copy of the session for userID. Callers must treat a false
// result as "no dialogue in progress", never as an error.
func (st *Store[S]) Get(userID int64) (S, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.sessions[userID]
	if !ok {
		var zero S
		return zero, false
	}
	return e.data, true
}

// Update applies mutate to the stored session and resets the expiry timer.
// When the session is absent (it may have expired between a handler's fetch
// and this call) Update is a no-op with a warning log; it never creates a
// session, so a deleted session cannot be resurrected with partial state.
func (st *Store[S]) Update(userID int64, mutate func(*S)) bool {
	st.mu.Lock()
	e, ok := st.sessions[userID]
	if !ok {
		st.mu.Unlock()
		logger.Warn(logger.Background(), st.name, "session.update.absent",
			slog.Int64("user_id", userID),
		)
		return false
	}
	mutate(&e.data)
	st.mu.Unlock()

	st.timers.Schedule(userID, st.ttl, func() { st.expire(userID) })
	return true
}

// Delete cancels the timer and removes the record. Safe to call when absent.
func (st *Store[S]) Delete(userID int64) {
	st.mu.Lock()
	_, ok := st.sessions[userID]
	delete(st.sessions, userID)
	st.mu.Unlock()

	if ok {
		st.timers.Cancel(userID)
	}
}

// CleanupExpired removes sessions older than maxAge by creation time and
// returns how many were removed. This is a defense-in-depth sweep against
// timer-cancellation bugs, not the primary expiry mechanism.
func (st *Store[S]) CleanupExpired(maxAge time.Duration) int {
	now := time.Now()

	st.mu.Lock()
	var stale []int64
	for userID, e := range st.sessions {
		if now.Sub(e.createdAt) > maxAge {
			stale = append(stale, userID)
			delete(st.sessions, userID)
		}
	}
	st.mu.Unlock()

	for _, userID := range stale {
		st.timers.Cancel(userID)
		logger.Info(logger.Background(), st.name, "session.swept",
			slog.Int64("user_id", userID),
		)
	}
	return len(stale)
}

// Len reports the number of active sessions.
func (st *Store[S]) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store[S]) expire(userID int64) {
	st.mu.Lock()
	e, ok := st.sessions[userID]
	if !ok {
		st.mu.Unlock()
		return
	}
	delete(st.sessions, userID)
	st.mu.Unlock()

	logger.Info(logger.Background(), st.name, "session.expired",
		slog.Int64("user_id", userID),
		slog.Duration("age", logger.RoundMS(time.Since(e.createdAt))),
	)
	if st.onExpire != nil {
		st.onExpire(userID, e.data)
	}
}
