// Package connlimit bounds concurrent real-time connections per instance and per client IP.
package connlimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateCleanupInterval = 5 * time.Minute
	rateIdleCutoff      = 10 * time.Minute
)

// Reason describes why a connection was rejected.
type Reason string

const (
	ReasonGlobal Reason = "global_limit"
	ReasonPerIP  Reason = "per_ip_limit"
	ReasonRate   Reason = "rate_limit"
)

// Limits combines a global cap, a per-IP cap and a per-IP connection rate.
// Both websocket transports share one instance.
type Limits struct {
	clock clockwork.Clock

	current atomic.Int64
	max     int64

	mu     sync.Mutex
	perIP  map[string]int
	maxPer int

	rateMu    sync.Mutex
	buckets   map[string]*bucket
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func New(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int, clock clockwork.Clock) *Limits {
	return &Limits{
		clock:     clock,
		max:       globalMax,
		perIP:     make(map[string]int),
		maxPer:    perIPMax,
		buckets:   make(map[string]*bucket),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: clock.Now().Add(rateCleanupInterval),
	}
}

// Acquire reserves a connection slot for ip. On failure nothing is held.
func (l *Limits) Acquire(ip string) (bool, Reason) {
	if !l.allowRate(ip) {
		return false, ReasonRate
	}

	if !l.acquireGlobal() {
		return false, ReasonGlobal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] >= l.maxPer {
		l.current.Add(-1)
		return false, ReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

// Release frees a slot previously acquired for ip.
func (l *Limits) Release(ip string) {
	l.mu.Lock()
	if count := l.perIP[ip]; count > 0 {
		if count == 1 {
			delete(l.perIP, ip)
		} else {
			l.perIP[ip] = count - 1
		}
		l.current.Add(-1)
	}
	l.mu.Unlock()
}

func (l *Limits) acquireGlobal() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *Limits) allowRate(ip string) bool {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-rateIdleCutoff)
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.cleanupAt = now.Add(rateCleanupInterval)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
