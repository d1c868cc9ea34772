package nuagex

import (
	"context"
	"fmt"
	"time"
)

// PollOption configures a wait loop.
type PollOption func(*pollOpts)

type pollOpts struct {
	interval    time.Duration
	maxInterval time.Duration
	attempts    int
	backoff     float64
	onPoll      func(attempt int, lab *Lab)
}

func defaultPollOpts() *pollOpts {
	return &pollOpts{
		interval: 5 * time.Second,
		attempts: 20,
		backoff:  1.0,
	}
}

// WithPollInterval sets the delay between attempts.
func WithPollInterval(d time.Duration) PollOption {
	return func(o *pollOpts) { o.interval = d }
}

// WithAttempts caps the number of polls. Zero or less means no cap.
func WithAttempts(n int) PollOption {
	return func(o *pollOpts) { o.attempts = n }
}

// WithBackoff multiplies the interval after each attempt, up to maxInterval
// (0 means unbounded).
func WithBackoff(multiplier float64, maxInterval time.Duration) PollOption {
	return func(o *pollOpts) {
		o.backoff = multiplier
		o.maxInterval = maxInterval
	}
}

// WithOnPoll registers a callback run after every attempt. lab is nil when
// the lab was not listed.
func WithOnPoll(fn func(attempt int, lab *Lab)) PollOption {
	return func(o *pollOpts) { o.onPoll = fn }
}

// pollLoop calls pollFn until it reports done, fails, the attempt budget is
// spent or ctx is cancelled.
func pollLoop[T any](ctx context.Context, opts *pollOpts, pollFn func(attempt int) (bool, T, error)) (T, error) {
	if opts.interval <= 0 {
		opts.interval = time.Second
	}

	interval := opts.interval
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	var zero T
	for attempt := 1; ; attempt++ {
		done, result, err := pollFn(attempt)
		if err != nil {
			return zero, err
		}
		if done {
			return result, nil
		}
		if opts.attempts > 0 && attempt >= opts.attempts {
			return zero, fmt.Errorf("%w after %d attempts", ErrWaitTimeout, attempt)
		}

		if opts.backoff > 1.0 {
			interval = time.Duration(float64(interval) * opts.backoff)
			if opts.maxInterval > 0 && interval > opts.maxInterval {
				interval = opts.maxInterval
			}
		}

		if timer == nil {
			timer = time.NewTimer(interval)
		} else {
			timer.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
