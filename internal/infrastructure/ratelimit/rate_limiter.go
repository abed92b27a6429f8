package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionCreateRoom  = "create_room"
	ActionUpload      = "upload"
)

// Limit is a steady rate with a burst allowance.
type Limit struct {
	PerMinute int
	Burst     int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user and action.
type RateLimiter struct {
	buckets map[string]*bucket
	limits  map[string]Limit
	mutex   sync.Mutex
	now     func() time.Time
}

var defaultLimits = map[string]Limit{
	ActionSendMessage: {PerMinute: 30, Burst: 10},
	ActionCreateRoom:  {PerMinute: 5, Burst: 5},
	ActionUpload:      {PerMinute: 10, Burst: 3},
}

var fallbackLimit = Limit{PerMinute: 20, Burst: 20}

// NewRateLimiter starts from the default limits; overrides replace them per action.
func NewRateLimiter(overrides map[string]Limit) *RateLimiter {
	limits := make(map[string]Limit, len(defaultLimits)+len(overrides))
	for action, l := range defaultLimits {
		limits[action] = l
	}
	for action, l := range overrides {
		limits[action] = l
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limits:  limits,
		now:     time.Now,
	}
}

func (l Limit) limiter() *rate.Limiter {
	perMinute := l.PerMinute
	if perMinute <= 0 {
		perMinute = fallbackLimit.PerMinute
	}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// Allow consumes a token for userID's action. When none is available it
// returns false and how long until one will be.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		limit, ok := rl.limits[action]
		if !ok {
			limit = fallbackLimit
		}
		b = &bucket{limiter: limit.limiter()}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mutex.Unlock()

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Minute
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup removes buckets that have not been used for idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine prunes idle buckets until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}

func (rl *RateLimiter) size() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.buckets)
}
