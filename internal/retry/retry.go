// Package retry re-runs an action immediately when it fails with a transient error.
package retry

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
)

// DefaultRetries is the retry budget used when the caller passes a negative count.
const DefaultRetries = 3

// Predicate reports whether err is worth another attempt.
type Predicate func(err error) bool

type options struct {
	name      string
	predicate Predicate
	logger    *logrus.Logger
}

// Option configures Do.
type Option func(*options)

// WithPredicate replaces the default device.IsTransient classification.
func WithPredicate(p Predicate) Option {
	return func(o *options) {
		if p != nil {
			o.predicate = p
		}
	}
}

// WithLogger logs every retry at warn level.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName labels log entries.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Do invokes action and retries it immediately, up to retries more times,
// while it fails with an error the predicate accepts. Any other error, or
// the last transient one once the budget is spent, is returned unchanged.
// A done ctx stops further attempts and its error is returned.
func Do(ctx context.Context, retries int, action func(ctx context.Context) error, opts ...Option) error {
	_, err := DoValue(ctx, retries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	}, opts...)
	return err
}

// DoValue is Do for actions that produce a result.
func DoValue[T any](ctx context.Context, retries int, action func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		name:      "action",
		predicate: device.IsTransient,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if retries < 0 {
		retries = DefaultRetries
	}

	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := action(ctx)
		if err == nil {
			return v, nil
		}

		remaining := retries - attempt
		if remaining <= 0 || !o.predicate(err) {
			return zero, err
		}

		if o.logger != nil {
			o.logger.WithFields(logrus.Fields{
				"action":    o.name,
				"attempt":   attempt + 1,
				"remaining": remaining,
				"error":     err,
			}).Warn("Transient failure, retrying")
		}
	}
}
