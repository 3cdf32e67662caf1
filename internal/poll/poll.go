// Package poll paces consumers that poll a queue: while the queue stays empty
// the wait between polls doubles up to a maximum, and a successful poll drops
// it back to the minimum.
package poll

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	DefaultMinWait = 50 * time.Microsecond
	DefaultMaxWait = 10 * time.Millisecond
)

// Poller holds the backoff state of one consumer. It is not safe for
// concurrent use.
type Poller struct {
	boff *backoff.ExponentialBackOff
}

func New(minWait, maxWait time.Duration) *Poller {
	if minWait <= 0 {
		minWait = DefaultMinWait
	}
	if maxWait < minWait {
		maxWait = minWait
	}
	boff := &backoff.ExponentialBackOff{
		InitialInterval:     minWait,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxWait,
		// Never give up, an idle queue is not an error.
		MaxElapsedTime: 0,
		Clock:          backoff.SystemClock,
	}
	boff.Reset()
	return &Poller{boff: boff}
}

// Reset is called after every successful poll.
func (p *Poller) Reset() {
	p.boff.Reset()
}

// Next reports the wait the next Wait will sleep for, advancing the backoff.
func (p *Poller) Next() time.Duration {
	return p.boff.NextBackOff()
}

// Wait sleeps for the next backoff interval or until ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
