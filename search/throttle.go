package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/vinayprograms/blogcrew/errors"
)

// Throttled spaces searches at least interval apart. Waiting honours the
// context.
type Throttled struct {
	next    Provider
	limiter *rate.Limiter
}

// NewThrottled wraps p. A non-positive interval disables throttling.
func NewThrottled(p Provider, interval time.Duration) *Throttled {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttled{
		next:    p,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Name implements Provider.
func (t *Throttled) Name() string { return t.next.Name() }

// Search implements Provider.
func (t *Throttled) Search(ctx context.Context, query string, count int) ([]Result, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "waiting for search slot")
		}
		// The limiter refuses waits that would outlast the deadline.
		return nil, errors.WrapWithCode(err, errors.ErrCodeTimeout, "waiting for search slot")
	}
	return t.next.Search(ctx, query, count)
}
