package bot

import (
	"sync"
	"time"
)

// FloodConfig bounds how fast one user may send messages.
type FloodConfig struct {
	// Rate is the sustainable messages per second per user.
	// Default: 1.
	Rate float64

	// Burst is the number of messages a user may send at once.
	// Default: 5.
	Burst int

	// IdleTTL drops a user's bucket after this long without messages.
	// Default: 10 minutes.
	IdleTTL time.Duration
}

// DefaultFloodConfig returns the default per-user limits.
func DefaultFloodConfig() FloodConfig {
	return FloodConfig{Rate: 1, Burst: 5, IdleTTL: 10 * time.Minute}
}

// tokenBucket implements the token bucket algorithm for one user.
type tokenBucket struct {
	tokens     float64
	lastUpdate time.Time
	denied     int64
}

func (tb *tokenBucket) allow(now time.Time, rate, burst float64) bool {
	tb.tokens += now.Sub(tb.lastUpdate).Seconds() * rate
	if tb.tokens > burst {
		tb.tokens = burst
	}
	tb.lastUpdate = now

	if tb.tokens >= 1.0 {
		tb.tokens--
		return true
	}
	tb.denied++
	return false
}

// FloodGuard keeps one token bucket per user.
type FloodGuard struct {
	mu      sync.Mutex
	config  FloodConfig
	buckets map[int64]*tokenBucket
	now     func() time.Time
	enabled bool
	swept   time.Time
}

// FloodOption configures a FloodGuard.
type FloodOption func(*FloodGuard)

// WithFloodClock replaces time.Now, for tests.
func WithFloodClock(now func() time.Time) FloodOption {
	return func(g *FloodGuard) {
		g.now = now
	}
}

// NewFloodGuard creates a guard. A negative Rate disables it.
func NewFloodGuard(config FloodConfig, opts ...FloodOption) *FloodGuard {
	defaults := DefaultFloodConfig()
	if config.Rate == 0 {
		config.Rate = defaults.Rate
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}

	g := &FloodGuard{
		config:  config,
		buckets: make(map[int64]*tokenBucket),
		now:     time.Now,
		enabled: config.Rate > 0,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.swept = g.now()
	return g
}

// Allow reports whether userID may send another message now and consumes a
// token if so. Anonymous senders (ID 0) are never limited.
func (g *FloodGuard) Allow(userID int64) bool {
	if g == nil || !g.enabled || userID == 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	bucket, ok := g.buckets[userID]
	if !ok {
		bucket = &tokenBucket{tokens: float64(g.config.Burst), lastUpdate: now}
		g.buckets[userID] = bucket
	}
	return bucket.allow(now, g.config.Rate, float64(g.config.Burst))
}

// Denied returns how many messages of userID were rejected.
func (g *FloodGuard) Denied(userID int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.buckets[userID]; ok {
		return b.denied
	}
	return 0
}

// Tracked returns the number of users with a live bucket.
func (g *FloodGuard) Tracked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buckets)
}

// sweep drops idle buckets at most once per IdleTTL. Caller holds mu.
func (g *FloodGuard) sweep(now time.Time) {
	if now.Sub(g.swept) < g.config.IdleTTL {
		return
	}
	g.swept = now
	for id, b := range g.buckets {
		if now.Sub(b.lastUpdate) >= g.config.IdleTTL {
			delete(g.buckets, id)
		}
	}
}
