// Package radio serializes access to the local BLE radio.
//
// The adapter can run one exchange at a time (a scan session or a
// connect/subscribe/stream/disconnect sequence). Every such exchange holds
// the Gate for its whole duration.
package radio

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Gate is a context-aware mutual-exclusion gate around the radio.
type Gate struct {
	sem    *semaphore.Weighted
	logger *logrus.Logger
}

// NewGate creates an open gate.
func NewGate(logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gate{
		sem:    semaphore.NewWeighted(1),
		logger: logger,
	}
}

var defaultGate = NewGate(nil)

// Default returns the process-wide gate.
func Default() *Gate {
	return defaultGate
}

// Acquire blocks until the radio is free or ctx is done. The returned
// release func must be called exactly once.
func (g *Gate) Acquire(ctx context.Context, holder string) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for radio (%s): %w", holder, err)
	}
	g.logger.WithField("holder", holder).Debug("Radio acquired")

	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.sem.Release(1)
		g.logger.WithField("holder", holder).Debug("Radio released")
	}, nil
}

// Do runs fn while holding the radio.
func (g *Gate) Do(ctx context.Context, holder string, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx, holder)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
