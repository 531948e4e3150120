package lockout

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memStore struct {
	attempts map[string]int
	locks    map[string]time.Time
	incrErr  error
	lockErr  error
}

func newMemStore() *memStore {
	return &memStore{attempts: make(map[string]int), locks: make(map[string]time.Time)}
}

func (m *memStore) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.attempts[id]++
	return m.attempts[id], nil
}

func (m *memStore) Lock(ctx context.Context, id string, until time.Time) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	m.locks[id] = until
	return nil
}

func (m *memStore) ResetLock(ctx context.Context, id string) error {
	delete(m.attempts, id)
	delete(m.locks, id)
	return nil
}

func TestReportFailureLocksAtThreshold(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(Config{Store: store, Threshold: 3, Duration: 15 * time.Minute})
	tracker.now = func() time.Time { return now }

	for i := 1; i <= 2; i++ {
		locked, err := tracker.ReportFailure(context.Background(), "u1")
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if locked {
			t.Fatalf("failure %d should not lock yet", i)
		}
	}

	locked, err := tracker.ReportFailure(context.Background(), "u1")
	if err != nil {
		t.Fatalf("failure 3: %v", err)
	}
	if !locked {
		t.Fatal("third failure should lock")
	}
	if got := store.locks["u1"]; !got.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected lock expiry %v", got)
	}
}

func TestReportSuccessClearsState(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(Config{Store: store, Threshold: 2})

	if _, err := tracker.ReportFailure(context.Background(), "u1"); err != nil {
		t.Fatalf("failure: %v", err)
	}
	if err := tracker.ReportSuccess(context.Background(), "u1"); err != nil {
		t.Fatalf("success: %v", err)
	}
	if store.attempts["u1"] != 0 {
		t.Fatalf("expected cleared counter, got %d", store.attempts["u1"])
	}

	// The counter restarts from zero after a success.
	locked, err := tracker.ReportFailure(context.Background(), "u1")
	if err != nil {
		t.Fatalf("failure: %v", err)
	}
	if locked {
		t.Fatal("single failure after reset should not lock")
	}
}

func TestTrackerDefaults(t *testing.T) {
	tracker := NewTracker(Config{Store: newMemStore()})
	if tracker.threshold != 5 {
		t.Fatalf("expected default threshold 5, got %d", tracker.threshold)
	}
	if tracker.Duration() != 15*time.Minute {
		t.Fatalf("expected default duration 15m, got %v", tracker.Duration())
	}
}

func TestReportFailureStoreErrors(t *testing.T) {
	store := newMemStore()
	store.incrErr = errors.New("db down")
	tracker := NewTracker(Config{Store: store, Threshold: 1})

	if _, err := tracker.ReportFailure(context.Background(), "u1"); err == nil {
		t.Fatal("expected increment error")
	}

	store.incrErr = nil
	store.lockErr = errors.New("db down")
	locked, err := tracker.ReportFailure(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected lock error")
	}
	if locked {
		t.Fatal("lock must not be reported when the store write failed")
	}
}
