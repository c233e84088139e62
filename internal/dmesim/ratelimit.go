package dmesim

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
)

const (
	peerIdleAfter  = 10 * time.Minute
	peerSweepEvery = 5 * time.Minute
)

// peerBuckets holds one token bucket per device IP.
type peerBuckets struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*peerBucket
}

type peerBucket struct {
	*rate.Limiter
	seen time.Time
}

func newPeerBuckets(rps, burst int) *peerBuckets {
	return &peerBuckets{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*peerBucket),
	}
}

// allow takes one token from ip's bucket, creating the bucket on first use.
func (p *peerBuckets) allow(ip string, now time.Time) bool {
	p.mu.Lock()
	b, ok := p.buckets[ip]
	if !ok {
		b = &peerBucket{Limiter: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[ip] = b
	}
	b.seen = now
	p.mu.Unlock()
	return b.AllowN(now, 1)
}

// sweep drops buckets not used since idle before now and reports how many
// remain.
func (p *peerBuckets) sweep(now time.Time, idle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ip, b := range p.buckets {
		if now.Sub(b.seen) > idle {
			delete(p.buckets, ip)
		}
	}
	return len(p.buckets)
}

func (p *peerBuckets) sweepUntilDone(ctx context.Context) {
	ticker := time.NewTicker(peerSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.sweep(now, peerIdleAfter)
		}
	}
}

// rateLimit throttles matching engine and token server calls per device IP.
// A throttled call gets 429 with a ResourceExhausted body. rps <= 0
// disables throttling.
func (e *Engine) rateLimit(ctx context.Context, rps, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	peers := newPeerBuckets(rps, burst)
	go peers.sweepUntilDone(ctx)

	return func(c *gin.Context) {
		if peers.allow(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		e.metrics.rateLimited.Inc()
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
			Code:    int(codes.ResourceExhausted),
			Message: "rate limit exceeded",
		})
	}
}
