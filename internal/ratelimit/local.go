package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/smallbiznis/kasira/internal/cache"
	"github.com/smallbiznis/kasira/internal/clock"
	"golang.org/x/time/rate"
)

// localBuckets is the single-process fallback used when Redis is absent.
type localBuckets struct {
	mu       sync.Mutex
	limiters *cache.TTLCache[string, *rate.Limiter]
	locks    *cache.TTLCache[string, string]
	clock    clock.Clock
}

func newLocalBuckets(clk clock.Clock) *localBuckets {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &localBuckets{
		limiters: cache.NewTTLCache[string, *rate.Limiter](clk),
		locks:    cache.NewTTLCache[string, string](clk),
		clock:    clk,
	}
}

func (l *localBuckets) allow(key string, r float64, burst int) *Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
	l.limiters.Set(key, limiter, bucketTTL(r, burst))

	now := l.clock.Now()
	res := &Decision{Limit: burst}
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return res
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		res.RetryAfter = delay
		return res
	}
	res.Allowed = true
	res.Remaining = int(math.Max(0, math.Floor(limiter.TokensAt(now))))
	return res
}

func (l *localBuckets) tryLock(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks.Get(key); held {
		return false
	}
	l.locks.Set(key, token, ttl)
	return true
}

func (l *localBuckets) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, held := l.locks.Get(key); held && current == token {
		l.locks.Delete(key)
	}
}
