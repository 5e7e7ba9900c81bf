package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/tp357/internal/device"
	"github.com/srg/tp357/internal/tp357"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "bluetooth off", err: fmt.Errorf("open: %w", device.ErrBluetoothOff), contains: "Bluetooth is turned off"},
		{name: "invalid mode", err: fmt.Errorf("%w: %q", tp357.ErrInvalidMode, "month"), contains: `"month"`},
		{name: "empty result", err: fmt.Errorf("day query: %w", tp357.ErrEmptyResult), contains: "The returned data is empty"},
		{name: "timeout", err: fmt.Errorf("%w: waiting for end of stream", tp357.ErrTimeout), contains: "raise --wait"},
		{name: "link failure", err: fmt.Errorf("connect: %w", device.ErrLinkFailure), contains: "after all retries"},
		{name: "other", err: errors.New("disk full"), contains: "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.contains)
		})
	}
	assert.Empty(t, FormatUserError(nil))
}

func TestPrintUserError_NoColorOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	printUserError(&buf, errors.New("disk full"))
	assert.Equal(t, "ERROR: disk full\n", buf.String())
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
}
