package handlers

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter()
	ip := "127.0.0.1"

	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed initially")
	}

	for i := 0; i < 4; i++ {
		limiter.Record(ip)
	}
	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed after 4 failures")
	}

	limiter.Record(ip)
	if limiter.Allow(ip) {
		t.Errorf("Expected IP to be blocked after 5 failures")
	}

	limiter.Reset(ip)
	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed after reset")
	}
}

func TestRateLimiterBlockExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter()
	limiter.now = func() time.Time { return now }
	ip := "192.168.1.100"

	for i := 0; i < maxAttempts; i++ {
		limiter.Record(ip)
	}
	if limiter.Allow(ip) {
		t.Fatal("Expected IP to be blocked")
	}
	if !limiter.Allow("10.0.0.5") {
		t.Error("Expected a different IP to stay allowed")
	}

	now = now.Add(blockDuration + time.Second)
	if !limiter.Allow(ip) {
		t.Error("Expected block to expire")
	}
}

func TestRateLimiterWindowRestarts(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter()
	limiter.now = func() time.Time { return now }
	ip := "192.168.1.100"

	for i := 0; i < maxAttempts-1; i++ {
		limiter.Record(ip)
	}
	now = now.Add(windowDuration + time.Minute)
	limiter.Record(ip)

	if !limiter.Allow(ip) {
		t.Error("Expected attempts from a closed window to be forgotten")
	}
}

func TestRateLimiterParallel(t *testing.T) {
	limiter := newRateLimiter()
	ip := "10.0.0.1"

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Record(ip)
		}()
	}
	wg.Wait()

	if limiter.Allow(ip) {
		t.Errorf("Expected IP to be blocked after concurrent failures")
	}
}
