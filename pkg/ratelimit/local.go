package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one token bucket per key. Limits are per process.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	sweepAt  time.Time
	now      func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	window   time.Duration
}

// NewLocalLimiter creates an empty in-process limiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, p Policy) (Decision, error) {
	p = p.normalized()
	now := l.now()

	lim := l.getLimiter(key, p, now)

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: int(lim.TokensAt(now))}, nil
}

func (l *LocalLimiter) getLimiter(key string, p Policy, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > e.window {
				delete(l.limiters, k)
			}
		}
		l.sweepAt = now.Add(time.Minute)
	}

	every := rate.Every(p.Window / time.Duration(p.Limit))
	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(every, p.Limit)}
		l.limiters[key] = e
	} else if e.limiter.Limit() != every || e.limiter.Burst() != p.Limit {
		e.limiter.SetLimitAt(now, every)
		e.limiter.SetBurstAt(now, p.Limit)
	}
	e.lastSeen = now
	e.window = p.Window
	return e.limiter
}
