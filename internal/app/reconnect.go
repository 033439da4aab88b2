package app

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"lockstep/client/internal/session"
	"lockstep/client/logging"
	"lockstep/client/logging/lifecycle"
)

// reconnector re-runs sessions while the server asks for it, spacing
// attempts with exponential backoff. Dial errors are only retried once a
// restart is under way.
type reconnector struct {
	initial   time.Duration
	maxTries  uint
	publisher logging.Publisher
	actor     logging.EntityRef
}

func (r reconnector) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.initial > 0 {
		b.InitialInterval = r.initial
	}
	b.MaxInterval = 8 * b.InitialInterval
	return b
}

// run calls attempt until it ends cleanly, fails permanently, or the
// attempts run out.
func (r reconnector) run(ctx context.Context, attempt func(ctx context.Context) error) error {
	tries := 0
	restarting := false
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		err := attempt(ctx)
		if _, ok := session.AsReason(err); err != nil && !ok && !restarting {
			return struct{}{}, backoff.Permanent(err)
		}
		err = classify(err)
		if err != nil {
			restarting = true
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxTries+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			lifecycle.ReconnectScheduled(ctx, r.publisher, r.actor, lifecycle.ReconnectPayload{
				DelayMillis: delay.Milliseconds(),
				Attempt:     tries,
			}, map[string]any{"error": err.Error()})
		}),
	)
	return err
}

// classify maps the outcome of one session onto the retry policy. Errors
// that are not session reasons come from dialing and stay retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	reason, ok := session.AsReason(err)
	if !ok {
		return err
	}
	switch {
	case reason.Kind == session.KindUserQuit:
		return nil
	case reason.Reconnect && reason.ReconnectAfter > 0:
		return backoff.RetryAfter(int(math.Ceil(reason.ReconnectAfter.Seconds())))
	case reason.Reconnect:
		return reason
	default:
		return backoff.Permanent(reason)
	}
}
