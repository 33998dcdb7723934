package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/imtaco/rtms-ingest/internal/log"
)

// Retry runs an operation until it succeeds, the policy gives up or ctx ends.
type Retry interface {
	Do(ctx context.Context, operation func() error) error
}

// New retries with exponential backoff between initialInterval and
// maxInterval, giving up once maxElapsedTime has passed.
func New(logger *log.Logger, initialInterval, maxInterval, maxElapsedTime time.Duration) Retry {
	return &exponential{
		logger: logger,
		policy: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initialInterval
			b.MaxInterval = maxInterval
			b.MaxElapsedTime = maxElapsedTime
			return b
		},
	}
}

type exponential struct {
	logger *log.Logger
	policy func() backoff.BackOff
}

func (r *exponential) Do(ctx context.Context, operation func() error) error {
	attempt := 0
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Retry attempt failed",
			log.Int("attempt", attempt),
			log.Duration("wait", wait),
			log.Error(err))
	}
	return backoff.RetryNotify(func() error {
		attempt++
		return operation()
	}, backoff.WithContext(r.policy(), ctx), notify)
}

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Constant returns a fixed-interval policy. maxAttempts <= 0 never gives up.
func Constant(interval time.Duration, maxAttempts int) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(interval)
	if maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxAttempts))
	}
	return b
}

// Stop is returned by a policy that gave up.
const Stop = backoff.Stop
