package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// limiterStore keeps one token bucket per caller. Entries that sit
// idle are evicted by a background sweep so the map stays bounded.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	s := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go s.sweep()
	return s
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (s *limiterStore) sweep() {
	for {
		time.Sleep(time.Minute)
		s.mu.Lock()
		for key, e := range s.limiters {
			if time.Since(e.lastSeen) > 3*time.Minute {
				delete(s.limiters, key)
			}
		}
		s.mu.Unlock()
	}
}

// RateLimit throttles per client IP, further partitioned by tenant so
// one clinic's traffic cannot exhaust another's allowance.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	store := newLimiterStore(rps, burst)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if tenant, ok := c.Get("jwt_tenant_id").(string); ok && tenant != "" {
				key = tenant + ":" + key
			}

			if !store.get(key).Allow() {
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
