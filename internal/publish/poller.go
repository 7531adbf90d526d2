package publish

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollTimeout indicates an async platform flow did not reach a terminal
// state within the attempt ceiling.
var ErrPollTimeout = errors.New("processing did not finish in time")

// pollFn inspects remote status once. done=true stops the loop; an error
// aborts it.
type pollFn func(ctx context.Context) (done bool, err error)

// poller retries a status check at a fixed interval up to maxAttempts.
// Platform async flows (container processing, upload transcoding) are bounded
// by it so no adapter can stall the fan-out indefinitely.
type poller struct {
	interval    time.Duration
	maxAttempts int
}

func (p poller) wait(ctx context.Context, fn pollFn) error {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w (after %d attempts)", ErrPollTimeout, p.maxAttempts)
}
