package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failing returns an action that fails transiently m times and then succeeds.
func failing(m int, calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= m {
			return fmt.Errorf("attempt %d: %w", *calls, device.ErrLinkFailure)
		}
		return nil
	}
}

func TestDo_TransientBudget(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		retries       int
		expectErr     bool
		expectedCalls int
	}{
		{name: "succeeds first time", failures: 0, retries: 3, expectErr: false, expectedCalls: 1},
		{name: "recovers within budget", failures: 2, retries: 3, expectErr: false, expectedCalls: 3},
		{name: "recovers on last retry", failures: 3, retries: 3, expectErr: false, expectedCalls: 4},
		{name: "budget exhausted", failures: 4, retries: 3, expectErr: true, expectedCalls: 4},
		{name: "zero retries", failures: 1, retries: 0, expectErr: true, expectedCalls: 1},
		{name: "negative retries uses default", failures: 3, retries: -1, expectErr: false, expectedCalls: DefaultRetries + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), tt.retries, failing(tt.failures, &calls))

			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, device.ErrLinkFailure, "last transient error MUST be surfaced")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}

func TestDo_NonTransientIsNotRetried(t *testing.T) {
	permanent := errors.New("malformed input")

	tests := []struct {
		name string
		err  error
	}{
		{name: "plain error", err: permanent},
		{name: "timeout", err: fmt.Errorf("%w: no end of stream", device.ErrTimeout)},
		{name: "bluetooth off", err: device.ErrBluetoothOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), 5, func(context.Context) error {
				calls++
				return tt.err
			})

			assert.Same(t, tt.err, err, "non-transient error MUST be returned unchanged")
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, 5, func(context.Context) error {
		calls++
		cancel()
		return device.ErrLinkFailure
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomPredicate(t *testing.T) {
	flaky := errors.New("flaky")

	calls := 0
	err := Do(context.Background(), 2, func(context.Context) error {
		calls++
		return flaky
	}, WithPredicate(func(err error) bool { return errors.Is(err, flaky) }),
		WithName("custom"),
		WithLogger(logrus.New()))

	assert.ErrorIs(t, err, flaky)
	assert.Equal(t, 3, calls)
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), 3, func(context.Context) ([]int, error) {
		calls++
		if calls < 2 {
			return nil, device.ErrNotConnected
		}
		return []int{1, 2, 3}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, v)
	assert.Equal(t, 2, calls)
}
