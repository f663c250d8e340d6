// Package ratelimit implements per-user sliding-window admission control.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

type Config struct {
	PerMinute int
	PerHour   int
}

// Limiter keeps one timestamp list per user, each behind its own lock.
type Limiter struct {
	cfg   Config
	users sync.Map // userID -> *window
	now   func() time.Time
}

type window struct {
	mu     sync.Mutex
	events []time.Time
	dead   bool
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a call for userID and reports whether it is under both caps.
// Rejected calls are not recorded.
func (l *Limiter) Allow(userID string) bool {
	for {
		v, _ := l.users.LoadOrStore(userID, &window{})
		w := v.(*window)

		w.mu.Lock()
		if w.dead {
			// swept between load and lock
			w.mu.Unlock()
			continue
		}

		now := l.now()
		w.evict(now)

		if w.countSince(now.Add(-minuteWindow)) >= l.cfg.PerMinute || len(w.events) >= l.cfg.PerHour {
			w.mu.Unlock()
			return false
		}

		w.events = append(w.events, now)
		w.mu.Unlock()
		return true
	}
}

// remaining returns how many calls userID may still make in the minute window.
func (l *Limiter) remaining(userID string) int {
	v, ok := l.users.Load(userID)
	if !ok {
		return min(l.cfg.PerMinute, l.cfg.PerHour)
	}
	w := v.(*window)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	w.evict(now)
	return max(0, min(l.cfg.PerMinute-w.countSince(now.Add(-minuteWindow)), l.cfg.PerHour-len(w.events)))
}

// Sweep drops users with no events inside the hour window and returns how many were removed.
func (l *Limiter) Sweep() int {
	removed := 0
	now := l.now()

	l.users.Range(func(key, v any) bool {
		w := v.(*window)
		w.mu.Lock()
		w.evict(now)
		if len(w.events) == 0 {
			w.dead = true
			l.users.Delete(key)
			removed++
		}
		w.mu.Unlock()
		return true
	})

	return removed
}

// Run sweeps idle users every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// evict drops events at or beyond the hour window. Events are appended in
// clock order so the expired ones form a prefix.
func (w *window) evict(now time.Time) {
	cutoff := now.Add(-hourWindow)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

func (w *window) countSince(cutoff time.Time) int {
	n := 0
	for j := len(w.events) - 1; j >= 0 && w.events[j].After(cutoff); j-- {
		n++
	}
	return n
}
