package guards

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

const logPrefix = "guards:ratelimit"

// Defaults applied when RateLimiterParams leaves a field zero.
const (
	DefaultRateLimit = 1.0
	DefaultRateBurst = 5
	DefaultIdleTTL   = 30 * time.Minute
)

// MsgRateLimited is the InvalidParams message returned to a throttled user.
const MsgRateLimited = "Slow down, you are sending commands too quickly"

// RateLimiterParams holds parameters for NewRateLimiter.
type RateLimiterParams struct {
	// PerSecond is the sustained rate per user.
	PerSecond float64
	// Burst is the number of commands a user may send at once.
	Burst int
	// IdleTTL is how long an unused per-user limiter is kept.
	IdleTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// RateLimiter throttles invocations per user with a token bucket each.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(params RateLimiterParams) *RateLimiter {
	perSecond := params.PerSecond
	if perSecond <= 0 {
		perSecond = DefaultRateLimit
	}
	burst := params.Burst
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	ttl := params.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		idleTTL:    ttl,
		now:        now,
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
	}
}

// Guard returns a registry.Guard enforcing the limit on inv.User.
func (r *RateLimiter) Guard() registry.Guard {
	return func(_ context.Context, inv *registry.Invocation) error {
		if !r.Allow(inv.User) {
			slog.Warn(fmt.Sprintf("%s - user %s throttled on %s", logPrefix, inv.User, inv.Command))
			return registry.InvalidParams(MsgRateLimited)
		}
		return nil
	}
}

// Allow consumes one token from user's bucket.
func (r *RateLimiter) Allow(user string) bool {
	return r.limiterFor(user).AllowN(r.now(), 1)
}

func (r *RateLimiter) limiterFor(user string) *rate.Limiter {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastAccess[user] = now
	if limiter, ok := r.limiters[user]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(r.limit, r.burst)
	r.limiters[user] = limiter
	return limiter
}

// Prune drops limiters idle for longer than the configured TTL and returns
// how many were removed.
func (r *RateLimiter) Prune() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for user, last := range r.lastAccess {
		if last.Before(cutoff) {
			delete(r.limiters, user)
			delete(r.lastAccess, user)
			removed++
		}
	}
	return removed
}

// Run prunes idle limiters every interval until ctx is done.
func (r *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				slog.Debug(fmt.Sprintf("%s - pruned %d idle limiters", logPrefix, n))
			}
		}
	}
}

// Users returns the number of tracked users.
func (r *RateLimiter) Users() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
