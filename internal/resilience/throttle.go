package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Throttle spaces calls made through one instance at least 1/rps apart.
// Separate instances do not coordinate.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a Throttle allowing rps calls per second. A
// non-positive rps disables pacing.
func NewThrottle(rps float64) *Throttle {
	if rps <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until the next call may proceed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "throttle: wait")
	}
	return nil
}
