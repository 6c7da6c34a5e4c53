// Package server implements the per-session sliding-window rate limiter.
// Exceeding the limit is an enforcement action (automatic ban), not a
// transient throttle.
package server

import "time"

// slidingWindow tracks inbound message volume for a single session. It is
// touched only by that session's handler goroutine and needs no locking.
type slidingWindow struct {
	windowStart time.Time
	count       int
	window      time.Duration
	max         int
}

func newSlidingWindow(window time.Duration, max int) slidingWindow {
	if window <= 0 {
		window = 4 * time.Second
	}
	if max <= 0 {
		max = 49
	}
	return slidingWindow{
		windowStart: time.Now(),
		window:      window,
		max:         max,
	}
}

// violates records one inbound message at the given instant and reports
// whether the session has exceeded the limit. While the window is open the
// counter accumulates; once it lapses the counter restarts at one.
func (w *slidingWindow) violates(now time.Time) bool {
	if now.Sub(w.windowStart) <= w.window {
		w.count++
		return w.count > w.max
	}
	w.count = 1
	w.windowStart = now
	return false
}
