package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	hl := NewHostLimiter(1, 2)
	url := "https://menu.example/page"

	if !hl.Allow(url) || !hl.Allow(url) {
		t.Fatal("burst of 2 should allow two immediate requests")
	}
	if hl.Allow(url) {
		t.Error("third immediate request should be limited")
	}
}

func TestHostsAreIndependent(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	if !hl.Allow("https://a.example/") {
		t.Fatal("first request to a.example limited")
	}
	if !hl.Allow("https://b.example/") {
		t.Error("b.example should have its own bucket")
	}
	if hl.Allow("https://a.example/") {
		t.Error("a.example bucket should be exhausted")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	hl := NewHostLimiter(0.001, 1)
	url := "https://slow.example/"
	if !hl.Allow(url) {
		t.Fatal("first request limited")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := hl.Wait(ctx, url); err == nil {
		t.Error("Wait should fail when the context ends before a token frees")
	}
}

func TestUnparsableURLPasses(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	if err := hl.Wait(context.Background(), "://bad"); err != nil {
		t.Errorf("Wait on unparsable URL: %v", err)
	}
	if !hl.Allow("://bad") {
		t.Error("Allow on unparsable URL should pass through")
	}
}

func TestSetLimit(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	hl.SetLimit("big.example", 100, 10)
	for i := 0; i < 5; i++ {
		if !hl.Allow("https://big.example/p") {
			t.Fatalf("request %d limited despite raised burst", i)
		}
	}
}
