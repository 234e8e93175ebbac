package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Options configures exponential backoff between attempts.
type Options struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// Default backoff settings used when opts are zero/invalid.
var Default = Options{
	MaxAttempts:  30,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

// ErrExhausted is returned by Until when the condition never became true.
var ErrExhausted = errors.New("retry: attempts exhausted")

// CheckFunc reports whether the awaited condition holds. A non-nil error stops polling.
type CheckFunc func(context.Context) (done bool, err error)

// Until calls check with exponential backoff until it reports done, returns an
// error, the context is done, or attempts are exhausted.
func Until(ctx context.Context, opts Options, check CheckFunc) error {
	if opts.MaxAttempts <= 0 {
		opts = Default
	}
	b := newBackoff(opts)

	for attempt := 1; ; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= opts.MaxAttempts {
			return ErrExhausted
		}

		timer := time.NewTimer(b.next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

type backoff struct {
	opts    Options
	current time.Duration
	rng     *rand.Rand
}

func newBackoff(opts Options) *backoff {
	if opts.Multiplier < 1 {
		opts.Multiplier = 1
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = Default.MaxDelay
	}
	return &backoff{
		opts:    opts,
		current: opts.InitialDelay,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next returns the sleep before the following attempt and advances the backoff.
func (b *backoff) next() time.Duration {
	sleep := b.current
	if b.opts.Jitter {
		// +/-20% jitter.
		delta := float64(b.current) * 0.2
		j := (b.rng.Float64()*2 - 1) * delta
		sleep = time.Duration(math.Max(0, float64(b.current)+j))
	}
	if sleep > b.opts.MaxDelay {
		sleep = b.opts.MaxDelay
	}

	// Overflow guard and cap.
	grown := time.Duration(float64(b.current) * b.opts.Multiplier)
	if grown < b.current {
		grown = b.current
	}
	b.current = min(grown, b.opts.MaxDelay)
	return sleep
}
