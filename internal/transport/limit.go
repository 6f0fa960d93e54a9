package transport

import (
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"
)

// peerLimiter applies one token bucket per remote peer. A zero rate admits
// everything.
type peerLimiter struct {
	bucket *limiter.TokenBucket
}

func newPeerLimiter(cfg Config) (*peerLimiter, error) {
	if cfg.RatePerSecond <= 0 {
		return &peerLimiter{}, nil
	}
	bucket, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(cfg.RatePerSecond),
			Duration: time.Second,
			Burst:    int64(cfg.RateBurst),
		},
		store.NewMemoryStore(time.Minute),
	)
	if err != nil {
		return nil, err
	}
	return &peerLimiter{bucket: bucket}, nil
}

func (l *peerLimiter) Allow(peer string) bool {
	if l == nil || l.bucket == nil {
		return true
	}
	return l.bucket.Allow(peer)
}
