package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the in-process per-client limiter. It is the
// fallback when no Redis instance is configured; a multi-replica deployment
// should prefer the Redis limiter so clients cannot multiply their budget
// across replicas.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the limits applied when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// visitorIdleTTL is how long a client may be silent before its bucket is
// dropped; a dropped client starts over with a full burst.
const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// visitorTable tracks one token bucket per client key. A single mutex covers
// the whole table; the critical section is a map lookup and a few float ops,
// which is cheap next to the request it gates. Idle visitors are swept
// opportunistically on the request path.
type visitorTable struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      float64
	burst     float64
	lastSweep time.Time
}

func newVisitorTable(cfg RateLimitConfig) *visitorTable {
	return &visitorTable{
		visitors:  make(map[string]*visitor),
		rate:      cfg.RequestsPerSecond,
		burst:     float64(cfg.BurstSize),
		lastSweep: time.Now(),
	}
}

// take spends one token for key. It reports whether the request may proceed,
// how many whole tokens remain, and, on rejection, the seconds to wait
// before a token is available again.
func (t *visitorTable) take(key string) (ok bool, remaining, retryAfter int) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) > time.Minute {
		for k, v := range t.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(t.visitors, k)
			}
		}
		t.lastSweep = now
	}

	v, found := t.visitors[key]
	if !found {
		v = &visitor{tokens: t.burst}
		t.visitors[key] = v
	} else {
		v.tokens = math.Min(t.burst, v.tokens+now.Sub(v.lastSeen).Seconds()*t.rate)
	}
	v.lastSeen = now

	if v.tokens < 1 {
		wait := 1
		if t.rate > 0 {
			wait = int(math.Ceil((1 - v.tokens) / t.rate))
		}
		return false, 0, wait
	}
	v.tokens--
	return true, int(v.tokens), 0
}

// RateLimit enforces per-client-IP token-bucket limits and reports the
// outcome via the conventional X-RateLimit-* and Retry-After headers.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	table := newVisitorTable(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, remaining, retryAfter := table.take(c.RealIP())

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
