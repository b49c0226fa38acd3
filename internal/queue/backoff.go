package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryDelay returns the delay before retrying a job that has failed attempt
// times: BackoffInitial doubling per attempt, capped at BackoffMax.
func (q *Queue) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	if q.cfg.BackoffInitial > 0 {
		b.InitialInterval = q.cfg.BackoffInitial
	}
	if q.cfg.BackoffMax > 0 {
		b.MaxInterval = q.cfg.BackoffMax
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.InitialInterval
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
