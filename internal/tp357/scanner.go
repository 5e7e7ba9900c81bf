package tp357

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
	"github.com/srg/tp357/internal/groutine"
	"github.com/srg/tp357/internal/queue"
)

// DefaultQueueCapacity bounds the handoff between BLE callbacks and consumers.
const DefaultQueueCapacity = 1024

// ScanOptions configures advertisement scanning.
type ScanOptions struct {
	NameFilter NameFilter
	// AllowList restricts readings to these addresses (case-insensitive).
	AllowList []string
	// BlockList drops readings from these addresses.
	BlockList     []string
	QueueCapacity int
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		NameFilter:    DefaultNameFilter,
		QueueCapacity: DefaultQueueCapacity,
	}
}

// advEvent is the snapshot taken in the BLE callback; decoding happens on
// the consumer side.
type advEvent struct {
	address string
	rssi    int
	record  []byte
	seenAt  time.Time
}

// Scanner turns TP357 advertisements into Readings.
type Scanner struct {
	dev      device.ScanningDevice
	opts     ScanOptions
	logger   *logrus.Logger
	lastSeen *hashmap.Map[string, Reading]
	now      func() time.Time
}

// NewScanner creates a scanner over dev. A nil opts uses DefaultScanOptions.
func NewScanner(dev device.ScanningDevice, opts *ScanOptions, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultScanOptions()
	}
	o := *opts
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}

	return &Scanner{
		dev:      dev,
		opts:     o,
		logger:   logger,
		lastSeen: hashmap.New[string, Reading](),
		now:      time.Now,
	}
}

// Stream is one listen session. Readings are delivered in arrival order.
type Stream struct {
	scanner *Scanner
	parent  context.Context
	events  *queue.Queue[advEvent]
	cancel  context.CancelFunc
	done    <-chan struct{}
	err     error // written before done is closed
}

// Scan starts a fresh listen session. The listener runs until ctx is done or
// Stop is called; a stack failure ends it and is reported by Next once the
// queued readings are drained.
func (s *Scanner) Scan(ctx context.Context) (*Stream, error) {
	events, err := queue.New[advEvent](s.opts.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create advertisement queue: %w", err)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	st := &Stream{
		scanner: s,
		parent:  ctx,
		events:  events,
		cancel:  cancel,
	}

	s.logger.WithFields(logrus.Fields{
		"name_filter": s.opts.NameFilter,
		"allow_list":  s.opts.AllowList,
	}).Info("Starting TP357 advertisement scan...")

	st.done = groutine.Go(scanCtx, "tp357-scan", func(gctx context.Context) {
		defer events.Close()

		err := s.dev.Scan(gctx, true, func(adv device.Advertisement) {
			s.handleAdvertisement(gctx, events, adv)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithError(err).Error("Advertisement scan failed")
			st.err = fmt.Errorf("scan failed: %w", err)
		}

		m := events.GetMetrics()
		s.logger.WithFields(logrus.Fields{
			"queued":   m.Accepted,
			"rejected": m.Rejected,
		}).Info("Advertisement scan stopped")
	})

	return st, nil
}

// handleAdvertisement runs on the stack's goroutine: filter and enqueue only.
func (s *Scanner) handleAdvertisement(ctx context.Context, events *queue.Queue[advEvent], adv device.Advertisement) {
	if ctx.Err() != nil {
		return
	}
	if !s.opts.NameFilter.Match(adv.LocalName()) {
		return
	}

	address := adv.Addr()
	if !s.shouldInclude(address) {
		return
	}

	record := adv.ManufacturerData()
	if len(record) == 0 {
		return
	}

	ev := advEvent{
		address: address,
		rssi:    adv.RSSI(),
		record:  record,
		seenAt:  s.now(),
	}
	if err := events.Offer(ev); err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Advertisement dropped")
	}
}

// shouldInclude applies the allow and block lists.
func (s *Scanner) shouldInclude(address string) bool {
	for _, blocked := range s.opts.BlockList {
		if strings.EqualFold(address, blocked) {
			return false
		}
	}
	if len(s.opts.AllowList) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowList {
		if strings.EqualFold(address, allowed) {
			return true
		}
	}
	return false
}

func (s *Scanner) decode(ev advEvent) (Reading, bool) {
	r, ok := DecodeAdvertisement(ev.record, ev.seenAt)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"address": ev.address,
			"record":  fmt.Sprintf("% x", ev.record),
		}).Debug("Advertisement carries no valid reading")
		return Reading{}, false
	}

	r.Address = ev.address
	r.RSSI = intPtr(ev.rssi)
	s.lastSeen.Set(strings.ToUpper(ev.address), r)
	return r, true
}

// Next blocks until the next Reading is available. After the listener has
// stopped, queued readings are still returned; then Next reports the scan
// failure, or ErrStreamClosed.
func (st *Stream) Next(ctx context.Context) (Reading, error) {
	for {
		ev, err := st.events.Receive(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				return Reading{}, err
			}
			if st.err != nil {
				return Reading{}, st.err
			}
			if cause := st.parent.Err(); cause != nil {
				return Reading{}, fmt.Errorf("%w: %w", ErrStreamClosed, cause)
			}
			return Reading{}, ErrStreamClosed
		}

		if r, ok := st.scanner.decode(ev); ok {
			return r, nil
		}
	}
}

// Stop tears the listener down and waits for it. No reading is queued after
// Stop returns. Safe to call more than once.
func (st *Stream) Stop() {
	st.cancel()
	<-st.done
}

// Metrics returns the handoff queue counters.
func (st *Stream) Metrics() queue.Metrics {
	return st.events.GetMetrics()
}

// First scans until one TP357 reading arrives and stops the listener.
func (s *Scanner) First(ctx context.Context) (Reading, error) {
	st, err := s.Scan(ctx)
	if err != nil {
		return Reading{}, err
	}
	defer st.Stop()

	r, err := st.Next(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Reading{}, fmt.Errorf("%w: no advertisement matching %q: %w", ErrTimeout, s.opts.NameFilter, err)
		}
		return Reading{}, err
	}
	return r, nil
}

// Latest returns the last reading seen from address during this scanner's lifetime.
func (s *Scanner) Latest(address string) (Reading, bool) {
	return s.lastSeen.Get(strings.ToUpper(address))
}

// Seen returns the last reading of every address seen so far.
func (s *Scanner) Seen() []Reading {
	readings := make([]Reading, 0, s.lastSeen.Len())
	s.lastSeen.Range(func(_ string, r Reading) bool {
		readings = append(readings, r)
		return true
	})
	return readings
}

// FindAddress scans until address advertises, whatever its name. The radio
// stack needs to have seen a peripheral before it can dial it on some
// platforms.
func FindAddress(ctx context.Context, dev device.ScanningDevice, address string, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.New()
	}

	findCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan struct{}, 1)
	var scanErr error
	logger.WithField("address", address).Info("Looking for device...")

	done := groutine.Go(findCtx, "tp357-find", func(gctx context.Context) {
		err := dev.Scan(gctx, false, func(adv device.Advertisement) {
			if gctx.Err() == nil && strings.EqualFold(adv.Addr(), address) {
				select {
				case found <- struct{}{}:
				default:
				}
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.WithError(err).Error("Device lookup scan failed")
			scanErr = err
		}
	})

	select {
	case <-found:
		cancel()
		<-done
		logger.WithField("address", address).Debug("Device found")
		return nil
	case <-done:
		select {
		case <-found:
			return nil
		default:
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: device %s not found: %w", ErrTimeout, address, err)
			}
			return err
		}
		if scanErr != nil {
			return fmt.Errorf("device lookup failed: %w", scanErr)
		}
		return device.LinkFailure("find device", fmt.Errorf("scan ended before %s was seen", address))
	}
}
