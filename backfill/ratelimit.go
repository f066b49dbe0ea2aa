package backfill

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimiter sleeps between consecutive successful requests to stay under
// a configured rate, via a token-bucket wrapper around golang.org/x/time/rate.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(hz float64) *rateLimiter {
	if hz <= 0 {
		hz = 8 // default request rate
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(hz), 1)}
}

// wait blocks until the next request is allowed. Failures that already
// consumed time are never throttled through this method — callers only
// invoke wait after a successful response: the streaming loop after OK,
// discovery probes after OK or no_data.
func (r *rateLimiter) wait(ctx context.Context) {
	_ = r.limiter.Wait(ctx)
}
