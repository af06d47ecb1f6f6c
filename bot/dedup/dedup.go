// Package dedup suppresses duplicate delivery of idempotency-sensitive
// events. Telegram redelivers some update kinds (bot added to a chat, chat
// initialized) with at-least-once semantics, so side-effectful greetings must
// collapse duplicates within a time window.
package dedup

import (
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/m3rciful/crewbot/core/logger"
	"log/slog"
)

// Deduplicator is a time-bounded seen-set keyed by an event-derived string.
type Deduplicator struct {
	seen *ttlcache.Cache[string, struct{}]
}

// New constructs a Deduplicator whose entries expire after window.
func New(window time.Duration) *Deduplicator {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](window),
	)
	go cache.Start()
	return &Deduplicator{seen: cache}
}

// Seen records the event key and reports whether it was already present
// within the window. The first delivery returns false, duplicates true.
// The check-and-record is a single cache operation, so concurrent
// deliveries of the same event admit exactly one.
func (d *Deduplicator) Seen(key string) bool {
	_, existed := d.seen.GetOrSet(key, struct{}{})
	if existed {
		logger.Debug(logger.Background(), "dedup", "event.duplicate",
			slog.String("key", key),
		)
	}
	return existed
}

// EventKey derives a dedup key from an event kind and its chat/user scope.
func EventKey(kind string, chatID, userID int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, chatID, userID)
}

// Close stops the background eviction loop.
func (d *Deduplicator) Close() {
	d.seen.Stop()
}
