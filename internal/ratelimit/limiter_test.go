package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryLimiterAllowsUpToLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 3-i, res.Remaining)
		}
	}

	res, err := l.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("request past the limit should be denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", res.Remaining)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after %v", res.RetryAfter)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)

	if res, _ := l.Allow(context.Background(), "a"); !res.Allowed {
		t.Fatal("first request for a should pass")
	}
	if res, _ := l.Allow(context.Background(), "a"); res.Allowed {
		t.Fatal("second request for a should be denied")
	}
	if res, _ := l.Allow(context.Background(), "b"); !res.Allowed {
		t.Fatal("b has its own budget")
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	if res, _ := l.Allow(context.Background(), "user-1"); !res.Allowed {
		t.Fatal("first request should pass")
	}
	if res, _ := l.Allow(context.Background(), "user-1"); res.Allowed {
		t.Fatal("second request in window should be denied")
	}

	now = now.Add(61 * time.Second)
	if res, _ := l.Allow(context.Background(), "user-1"); !res.Allowed {
		t.Fatal("request in new window should pass")
	}
}

func TestMemoryLimiterEmptyKeyUsesAnonymous(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)

	if res, _ := l.Allow(context.Background(), ""); !res.Allowed {
		t.Fatal("first anonymous request should pass")
	}
	// The sentinel bucket is shared by every anonymous caller.
	if res, _ := l.Allow(context.Background(), AnonymousKey); res.Allowed {
		t.Fatal("anonymous budget should already be spent")
	}
}

func TestMemoryLimiterConcurrentCounts(t *testing.T) {
	const workers = 50
	l := NewMemoryLimiter(workers, time.Minute)

	var wg sync.WaitGroup
	denied := make(chan struct{}, workers+1)
	for i := 0; i < workers+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "shared")
			if err != nil {
				t.Errorf("allow: %v", err)
				return
			}
			if !res.Allowed {
				denied <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(denied)

	var count int
	for range denied {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one denial, got %d", count)
	}
}

func TestMemoryLimiterSweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	_, _ = l.Allow(context.Background(), "b")
	if len(l.buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(l.buckets))
	}

	now = now.Add(2 * time.Minute)
	l.Sweep()
	if len(l.buckets) != 0 {
		t.Fatalf("expected swept buckets, got %d", len(l.buckets))
	}
}
