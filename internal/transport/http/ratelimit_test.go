package http

import "testing"

func TestRateLimiterCapsPerWindow(t *testing.T) {
	r := newRateLimiter(3)
	stop := make(chan struct{})
	defer close(stop)
	r.startReset(stop)

	for i := 0; i < 3; i++ {
		if !r.allow() {
			t.Fatalf("message %d rejected under limit", i)
		}
	}
	if r.allow() {
		t.Fatal("message over limit allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := newRateLimiter(0)
	r.startReset(nil)
	for i := 0; i < 1000; i++ {
		if !r.allow() {
			t.Fatal("disabled limiter rejected a message")
		}
	}

	var nilLimiter *rateLimiter
	if !nilLimiter.allow() {
		t.Fatal("nil limiter rejected a message")
	}
}
