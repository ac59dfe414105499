package analytics

import (
	"sync"
	"testing"
)

func TestRecordSuccessAndFailure(t *testing.T) {
	c := New()
	c.RecordSuccess("openai")
	c.RecordFailure("anthropic")
	c.RecordFailure("")

	snap := c.Snapshot()
	if snap.TotalRequests != 3 {
		t.Fatalf("expected 3 total requests, got %d", snap.TotalRequests)
	}
	if snap.SuccessfulRequests != 1 || snap.FailedRequests != 2 {
		t.Fatalf("unexpected split: %+v", snap)
	}
	if snap.RequestsByProvider["openai"] != 1 || snap.RequestsByProvider["anthropic"] != 1 {
		t.Fatalf("unexpected per-provider counts: %+v", snap.RequestsByProvider)
	}
}

func TestRecordTokensAccumulatesPerProvider(t *testing.T) {
	c := New()
	c.RecordTokens("openai", 10, 5)
	snap := c.Snapshot()
	if snap.InputTokensByProvider["openai"] != 10 || snap.OutputTokensByProvider["openai"] != 5 {
		t.Fatalf("unexpected token counts: %+v", snap)
	}
}

func TestRecentErrorsFIFOBoundedAt10(t *testing.T) {
	c := New()
	for i := 0; i < 15; i++ {
		c.RecordError("openai", "ProviderHTTPError", "boom", "req-1")
	}
	snap := c.Snapshot()
	if len(snap.RecentErrors) != 10 {
		t.Fatalf("expected exactly 10 recent errors, got %d", len(snap.RecentErrors))
	}
	if snap.TotalErrors != 15 {
		t.Fatalf("expected totalErrors=15, got %d", snap.TotalErrors)
	}
	if snap.ErrorsByType["ProviderHTTPError"] != 15 {
		t.Fatalf("expected 15 ProviderHTTPError entries, got %d", snap.ErrorsByType["ProviderHTTPError"])
	}
}

func TestSnapshotIndependentOfFurtherWrites(t *testing.T) {
	c := New()
	c.RecordSuccess("openai")
	snap := c.Snapshot()
	c.RecordSuccess("openai")

	if snap.RequestsByProvider["openai"] != 1 {
		t.Fatalf("expected snapshot to be frozen at 1, got %d", snap.RequestsByProvider["openai"])
	}
	if live := c.Snapshot(); live.RequestsByProvider["openai"] != 2 {
		t.Fatalf("expected live counters to reflect 2, got %d", live.RequestsByProvider["openai"])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordSuccess("openai")
			c.RecordTokens("openai", 1, 1)
			c.RecordError("openai", "ProviderHTTPError", "x", "req-1")
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.SuccessfulRequests != 100 {
		t.Fatalf("expected 100 successful requests, got %d", snap.SuccessfulRequests)
	}
	if snap.InputTokensByProvider["openai"] != 100 {
		t.Fatalf("expected 100 input tokens, got %d", snap.InputTokensByProvider["openai"])
	}
	if snap.TotalErrors != 100 {
		t.Fatalf("expected 100 errors, got %d", snap.TotalErrors)
	}
}
