package quickreject

import (
	"sync"

	"golang.org/x/time/rate"
)

// CFPLimiter is a per-key token bucket. Professors use it to bound
// their CFP broadcast rate, protecting Room Responders from a
// thundering-herd CFP storm on a SETUP retry; Room Responders reuse the
// same type keyed by room code as an ACCEPT_PROPOSAL admission limiter.
type CFPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewCFPLimiter builds a limiter allowing r events/second with burst b per key.
func NewCFPLimiter(r float64, b int) *CFPLimiter {
	return &CFPLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

// Allow reports whether key may proceed right now.
func (l *CFPLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter.Allow()
}
