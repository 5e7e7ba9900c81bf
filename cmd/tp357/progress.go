package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps one status line with the elapsed time of the
// current phase of a download.
//
// Usage:
//
//	p := NewProgressPrinter(os.Stderr, "Downloading day history", "connecting")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. After Stop, the instance cannot be restarted.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	interval time.Duration
	phase    atomic.Value // string

	mu        sync.Mutex
	startTime time.Time
	stopCh    chan struct{}
	done      chan struct{}
	stopped   bool
}

// NewProgressPrinter creates a progress printer that counts elapsed seconds.
func NewProgressPrinter(w io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		interval: progressUpdateInterval,
	}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil || p.stopped {
		panic("ProgressPrinter.Start called more than once")
	}

	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.print(0)

	ticker := time.NewTicker(p.interval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.print(int(time.Since(p.startTime).Seconds()))
			}
		}
	}()
}

func (p *ProgressPrinter) print(seconds int) {
	phase := p.phase.Load().(string)
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase updates the phase shown. Safe to call from any goroutine.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop stops the display and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.mu.Lock()
	if p.stopped || p.stopCh == nil {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	<-p.done
	fmt.Fprint(p.w, clearLineSequence)
}
