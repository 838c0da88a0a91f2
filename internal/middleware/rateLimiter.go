package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

var limiterInstance = NewIPRateLimiter(rate.Limit(config.RATE_LIMIT_PER_SECOND), config.BURST_RATE_LIMIT_PER_SECOND)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter holds one token bucket per client IP.
type IPRateLimiter struct {
	ips       map[string]*limiterEntry
	mu        sync.Mutex
	rateLimit rate.Limit
	burstRate int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{ips: make(map[string]*limiterEntry), rateLimit: r, burstRate: b}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	entry, exists := i.ips[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(i.rateLimit, i.burstRate)}
		i.ips[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Prune drops limiters not used for idle and returns how many were removed.
func (i *IPRateLimiter) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	i.mu.Lock()
	defer i.mu.Unlock()
	removed := 0
	for ip, entry := range i.ips {
		if entry.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// StartLimiterJanitor prunes idle client limiters until ctx is done.
func StartLimiterJanitor(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTTL)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiterInstance.Prune(limiterIdleTTL)
			}
		}
	}()
}

// TODO: move the per-IP limiters to redis once several API replicas share traffic
