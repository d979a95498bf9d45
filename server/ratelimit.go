package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// loginLimiter throttles credential checks per identifier so a wrong-password
// loop cannot probe an account, while other accounts stay unaffected.
type loginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLoginLimiter(perSecond float64, burst int) *loginLimiter {
	return &loginLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *loginLimiter) Allow(identifier string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[identifier]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[identifier] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
