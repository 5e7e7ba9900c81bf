package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards bytes.Buffer against the printer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinter(t *testing.T) {
	var out syncBuffer
	p := NewProgressPrinter(&out, "Downloading day history", "connecting")
	p.interval = 5 * time.Millisecond

	p.Start()
	p.SetPhase("streaming")
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "(streaming")
	}, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "\rDownloading day history (connecting...)"))
	assert.True(t, strings.HasSuffix(s, clearLineSequence), "Stop MUST clear the status line")
	assert.Panics(t, p.Start)
}

func TestProgressPrinter_StopWithoutStart(t *testing.T) {
	var out syncBuffer
	p := NewProgressPrinter(&out, "Downloading", "connecting")
	p.Stop()
	assert.Empty(t, out.String())
}
