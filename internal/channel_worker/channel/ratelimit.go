package channel

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited spaces out calls to a platform so concurrent workers stay
// under its posting limit. Primary posts and replies share one budget.
type RateLimited struct {
	next    Channel
	limiter *rate.Limiter
}

// NewRateLimited allows perSec calls per second with a burst of one.
// A non-positive perSec returns next unchanged.
func NewRateLimited(next Channel, perSec float64) Channel {
	if perSec <= 0 {
		return next
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), 1)}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) CreatePost(ctx context.Context, text string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.CreatePost(ctx, text)
}

func (r *RateLimited) CreateReply(ctx context.Context, parentID, text string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.CreateReply(ctx, parentID, text)
}
