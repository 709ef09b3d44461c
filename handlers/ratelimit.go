package handlers

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type attemptData struct {
	count        int
	firstAttempt time.Time
}

// rateLimiter blocks an IP once it reaches maxAttempts within window.
type rateLimiter struct {
	sync.Mutex
	attempts map[string]*attemptData
	blocked  map[string]time.Time

	maxAttempts int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
}

const (
	maxAttempts    = 5
	blockDuration  = 15 * time.Minute
	windowDuration = 15 * time.Minute

	maxTrackedIPs = 10000
)

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		attempts:    make(map[string]*attemptData),
		blocked:     make(map[string]time.Time),
		maxAttempts: maxAttempts,
		window:      windowDuration,
		block:       blockDuration,
		now:         time.Now,
	}
}

// Allow returns false if the IP is currently blocked.
// It also cleans up expired blocks.
func (r *rateLimiter) Allow(ip string) bool {
	r.Lock()
	defer r.Unlock()

	if unblockTime, ok := r.blocked[ip]; ok {
		if r.now().Before(unblockTime) {
			return false
		}
		delete(r.blocked, ip)
		delete(r.attempts, ip)
	}
	return true
}

// Record counts an attempt and blocks the IP once the threshold is reached.
func (r *rateLimiter) Record(ip string) {
	r.Lock()
	defer r.Unlock()

	now := r.now()
	if len(r.attempts) > maxTrackedIPs {
		r.prune(now)
	}

	data, exists := r.attempts[ip]
	if !exists || now.Sub(data.firstAttempt) > r.window {
		data = &attemptData{firstAttempt: now}
		r.attempts[ip] = data
	}
	data.count++
	if data.count >= r.maxAttempts {
		r.blocked[ip] = now.Add(r.block)
	}
}

// Reset clears the counter for an IP (used on successful login).
func (r *rateLimiter) Reset(ip string) {
	r.Lock()
	defer r.Unlock()
	delete(r.attempts, ip)
	delete(r.blocked, ip)
}

// prune drops windows that have already closed. Caller holds the lock.
func (r *rateLimiter) prune(now time.Time) {
	for ip, data := range r.attempts {
		if now.Sub(data.firstAttempt) > r.window {
			delete(r.attempts, ip)
		}
	}
	for ip, until := range r.blocked {
		if !now.Before(until) {
			delete(r.blocked, ip)
		}
	}
}

// getClientIP reads RemoteAddr, which middleware.RealIP rewrites only when
// proxy headers are trusted.
func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
