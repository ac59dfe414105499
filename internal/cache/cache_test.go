package cache

import (
	"context"
	"testing"
	"time"

	"github.com/aigateway/gateway/internal/providers"
)

func TestMemoryCache_HitMissTTL(t *testing.T) {
	c := NewMemoryCache(context.Background(), time.Second)
	defer c.Close()

	fp := "deadbeef"
	if _, ok := c.Lookup(fp); ok {
		t.Fatalf("expected miss before insert")
	}

	c.Insert(fp, providers.CanonicalResponse{ID: "r1"})
	entry, ok := c.Lookup(fp)
	if !ok || entry.Response.ID != "r1" {
		t.Fatalf("expected hit with r1, got %+v ok=%v", entry, ok)
	}

	// force expiry by rigging the clock forward
	c.now = func() int64 { return time.Now().Unix() + 2 }
	if _, ok := c.Lookup(fp); ok {
		t.Fatalf("expected miss after TTL expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry evicted, Len=%d", c.Len())
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemoryCache(context.Background(), time.Hour)
	defer c.Close()

	c.Insert("a", providers.CanonicalResponse{ID: "1"})
	c.Insert("b", providers.CanonicalResponse{ID: "2"})
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected 0 entries after Clear, got %d", c.Len())
	}
}

func TestFingerprint_StableUnderTemperatureRounding(t *testing.T) {
	req := providers.CanonicalRequest{
		Messages:    []providers.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7000001,
		MaxTokens:   100,
	}
	req2 := providers.CanonicalRequest{
		Messages:    []providers.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.6999999,
		MaxTokens:   100,
	}

	fp1, err := Fingerprint("openai", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fp2, err := Fingerprint("openai", req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp1 != fp2 {
		t.Fatalf("expected fingerprints to collapse after rounding, got %q vs %q", fp1, fp2)
	}
}

func TestFingerprint_DiffersByProvider(t *testing.T) {
	req := providers.CanonicalRequest{Messages: []providers.Message{{Role: "user", Content: "hi"}}}

	fpX, _ := Fingerprint("openai", req)
	fpY, _ := Fingerprint("anthropic", req)
	if fpX == fpY {
		t.Fatalf("expected different fingerprints for different providers")
	}
	if len(fpX) != 40 {
		t.Fatalf("expected 40-hex-digit SHA-1 fingerprint, got length %d", len(fpX))
	}
}
