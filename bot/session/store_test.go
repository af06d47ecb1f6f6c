package session

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakeSession struct {
	Step  string
	Count int
}

func TestCreateAndGet(t *testing.T) {
	st := NewStore[fakeSession]("test", time.Hour)
	st.Create(1, fakeSession{Step: "awaiting_phone"})

	got, ok := st.Get(1)
	if !ok {
		t.Fatal("session not found after Create")
	}
	if got.Step != "awaiting_phone" {
		t.Errorf("Step = %q, want awaiting_phone", got.Step)
	}
	if _, ok := st.Get(2); ok {
		t.Error("Get returned a session for an unknown user")
	}
}

func TestCreateReplacesExistingSession(t *testing.T) {
	st := NewStore[fakeSession]("test", time.Hour)
	st.Create(1, fakeSession{Step: "awaiting_phone", Count: 5})
	st.Create(1, fakeSession{Step: "awaiting_code"})

	got, _ := st.Get(1)
	if got.Step != "awaiting_code" || got.Count != 0 {
		t.Errorf("old session leaked into replacement: %+v", got)
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}
}

func TestUpdateMutatesInPlace(t *testing.T) {
	st := NewStore[fakeSession]("test", time.Hour)
	st.Create(1, fakeSession{Step: "awaiting_code"})

	ok := st.Update(1, func(s *fakeSession) { s.Count++ })
	if !ok {
		t.Fatal("Update returned false for a live session")
	}
	got, _ := st.Get(1)
	if got.Count != 1 {
		t.Errorf("Count = %d, want 1", got.Count)
	}
}

func TestUpdateAbsentIsNoop(t *testing.T) {
	st := NewStore[fakeSession]("test", time.Hour)

	called := false
	if st.Update(99, func(s *fakeSession) { called = true }) {
		t.Error("Update returned true for an absent session")
	}
	if called {
		t.Error("mutate ran for an absent session")
	}
	if _, ok := st.Get(99); ok {
		t.Error("Update resurrected an absent session")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	st := NewStore[fakeSession]("test", time.Hour)
	st.Create(1, fakeSession{Count: 1})

	got, _ := st.Get(1)
	got.Count = 100

	again, _ := st.Get(1)
	if again.Count != 1 {
		t.Errorf("mutation of the returned copy reached the store: Count = %d", again.Count)
	}
}

func TestSessionExpires(t *testing.T) {
	var expired atomic.Int32
	st := NewStore("test", 20*time.Millisecond,
		WithOnExpire[fakeSession](func(userID int64, s fakeSession) { expired.Add(1) }),
	)
	st.Create(1, fakeSession{Step: "awaiting_phone"})

	time.Sleep(80 * time.Millisecond)
	if _, ok := st.Get(1); ok {
		t.Error("session survived past its ttl")
	}
	if got := expired.Load(); got != 1 {
		t.Errorf("onExpire ran %d times, want 1", got)
	}
}

func TestUpdateResetsExpiryTimer(t *testing.T) {
	st := NewStore[fakeSession]("test", 60*time.Millisecond)
	st.Create(1, fakeSession{})

	// keep touching the session; it must outlive several ttl windows
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		if !st.Update(1, func(s *fakeSession) { s.Count++ }) {
			t.Fatalf("session expired despite update %d", i)
		}
	}

	time.Sleep(120 * time.Millisecond)
	if _, ok := st.Get(1); ok {
		t.Error("session survived after updates stopped")
	}
}

func TestDeleteCancelsExpiry(t *testing.T) {
	var expired atomic.Int32
	st := NewStore("test", 20*time.Millisecond,
		WithOnExpire[fakeSession](func(int64, fakeSession) { expired.Add(1) }),
	)
	st.Create(1, fakeSession{})
	st.Delete(1)
	st.Delete(1) // absent delete is safe

	time.Sleep(60 * time.Millisecond)
	if got := expired.Load(); got != 0 {
		t.Errorf("onExpire ran %d times after Delete, want 0", got)
	}
}

func TestCleanupExpiredSweepsOldSessions(t *testing.T) {
	st := NewStore[fakeSession]("test", time.Hour)
	st.Create(1, fakeSession{})
	st.Create(2, fakeSession{})

	time.Sleep(30 * time.Millisecond)
	st.Create(3, fakeSession{})

	removed := st.CleanupExpired(20 * time.Millisecond)
	if removed != 2 {
		t.Fatalf("CleanupExpired removed %d, want 2", removed)
	}
	if _, ok := st.Get(3); !ok {
		t.Error("young session was swept")
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d after sweep, want 1", st.Len())
	}
}
