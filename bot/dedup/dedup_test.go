package dedup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFirstDeliveryIsNotDuplicate(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	key := EventKey("bot_added", -100, 42)
	if d.Seen(key) {
		t.Error("first delivery reported as duplicate")
	}
	if !d.Seen(key) {
		t.Error("second delivery not reported as duplicate")
	}
}

func TestDistinctScopesDoNotCollide(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	if d.Seen(EventKey("bot_added", -100, 42)) {
		t.Error("fresh key reported as duplicate")
	}
	if d.Seen(EventKey("bot_added", -101, 42)) {
		t.Error("different chat collided")
	}
	if d.Seen(EventKey("chat_initialized", -100, 42)) {
		t.Error("different kind collided")
	}
}

func TestDuplicateWindowExpires(t *testing.T) {
	d := New(30 * time.Millisecond)
	defer d.Close()

	key := EventKey("bot_added", -100, 42)
	d.Seen(key)

	time.Sleep(80 * time.Millisecond)
	if d.Seen(key) {
		t.Error("key still considered duplicate after the window elapsed")
	}
}

func TestConcurrentDeliveriesAdmitExactlyOne(t *testing.T) {
	d := New(time.Minute)
	defer d.Close()

	key := EventKey("bot_added", -100, 42)
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.Seen(key) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Errorf("%d deliveries admitted, want exactly 1", got)
	}
}

func TestEventKeyFormat(t *testing.T) {
	got := EventKey("bot_added", -100123, 7)
	want := "bot_added:-100123:7"
	if got != want {
		t.Errorf("EventKey = %q, want %q", got, want)
	}
}
