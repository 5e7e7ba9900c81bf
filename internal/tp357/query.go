package tp357

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
	"github.com/srg/tp357/internal/groutine"
	"github.com/srg/tp357/internal/queue"
)

// State is the phase of a history exchange.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateSubscribed
	StateStreaming
	StateDrained
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateDrained:
		return "drained"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultConnectTimeout bounds connection establishment.
const DefaultConnectTimeout = 30 * time.Second

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.connectTimeout = d
		}
	}
}

// WithFrameQueueCapacity bounds the notification handoff.
func WithFrameQueueCapacity(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.frameCapacity = n
		}
	}
}

// WithClock overrides time.Now for origin computation.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTransitionHook registers an observer called on every state change.
func WithTransitionHook(hook func(from, to State)) EngineOption {
	return func(e *Engine) {
		e.onTransition = hook
	}
}

// Engine pulls stored history from a TP357 over a notification stream.
// It runs one exchange at a time; callers serialize access to the radio.
type Engine struct {
	conn           device.Connector
	logger         *logrus.Logger
	connectTimeout time.Duration
	frameCapacity  int
	now            func() time.Time
	onTransition   func(from, to State)

	mu    sync.Mutex
	state State
}

// NewEngine creates an engine that opens sessions through conn.
func NewEngine(conn device.Connector, logger *logrus.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		conn:           conn,
		logger:         logger,
		connectTimeout: DefaultConnectTimeout,
		frameCapacity:  DefaultQueueCapacity,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the phase of the running exchange.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) transition(log *logrus.Entry, to State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	hook := e.onTransition
	e.mu.Unlock()

	if from == to {
		return
	}
	log.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Query state changed")
	if hook != nil {
		hook(from, to)
	}
}

// Query runs one history exchange against address and returns its readings
// in ascending time order. ctx bounds the whole exchange: a deadline expiring
// before the end of the stream yields ErrTimeout, while the peripheral
// dropping the link yields a transient link failure. The session is torn down
// on every return path.
func (e *Engine) Query(ctx context.Context, address string, mode Mode) ([]Reading, error) {
	cmd, err := NewQueryCommand(mode, e.now())
	if err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"exchange": uuid.NewString(),
		"address":  address,
		"mode":     mode,
	})

	frames, err := queue.New[[]byte](e.frameCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification queue: %w", err)
	}
	defer frames.Close()

	log.Info("Querying device history...")

	sess, err := e.conn.Connect(ctx, address, &device.ConnectOptions{ConnectTimeout: e.connectTimeout})
	if err != nil {
		return nil, e.classify(ctx, "connect", err)
	}
	e.transition(log, StateConnected)

	// the link monitor cancels the exchange with ErrNotConnected as cause
	linkCtx, dropLink := context.WithCancelCause(ctx)
	var monitor sync.WaitGroup
	groutine.GoWG(linkCtx, &monitor, "tp357-link-monitor", func(mctx context.Context) {
		select {
		case <-sess.Disconnected():
			log.Warn("Peripheral dropped the connection")
			dropLink(device.ErrNotConnected)
		case <-mctx.Done():
		}
	})

	subscribed := false
	defer func() {
		dropLink(nil)
		monitor.Wait()

		if subscribed {
			if err := sess.Unsubscribe(NotifyCharUUID); err != nil {
				log.WithError(err).Warn("Failed to unsubscribe, disconnecting anyway")
			}
		}
		if err := sess.Disconnect(); err != nil {
			log.WithError(err).Warn("Disconnect reported an error")
		}
		e.transition(log, StateDisconnected)
	}()

	err = sess.Subscribe(NotifyCharUUID, func(data []byte) {
		if err := frames.Offer(data); err != nil {
			log.WithError(err).Warn("Notification dropped")
		}
	})
	if err != nil {
		return nil, e.classify(ctx, "subscribe", err)
	}
	subscribed = true
	e.transition(log, StateSubscribed)

	if err := sess.WriteNoResponse(WriteCharUUID, cmd.RequestBytes()); err != nil {
		return nil, e.classify(ctx, "write request", err)
	}
	e.transition(log, StateStreaming)

	readings, err := e.stream(linkCtx, log, frames, cmd)
	if err != nil {
		return nil, err
	}
	e.transition(log, StateDrained)

	if dropped := frames.GetMetrics().Rejected; dropped > 0 {
		return nil, device.LinkFailure("stream", fmt.Errorf("%d notifications dropped: %w", dropped, queue.ErrFull))
	}

	log.WithField("readings", len(readings)).Info("Device history received")
	if len(readings) == 0 {
		return nil, fmt.Errorf("%s query of %s: %w", mode, address, ErrEmptyResult)
	}
	return readings, nil
}

// stream consumes notifications until the end-of-stream marker. Frames
// queued before a link drop are still consumed.
func (e *Engine) stream(ctx context.Context, log *logrus.Entry, frames *queue.Queue[[]byte], cmd QueryCommand) ([]Reading, error) {
	var readings []Reading
	for {
		data, err := frames.Receive(ctx)
		if err != nil {
			if errors.Is(context.Cause(ctx), device.ErrNotConnected) {
				log.WithField("readings", len(readings)).Warn("Link dropped before end of stream")
				return nil, fmt.Errorf("waiting for end of stream: %w: %w", device.ErrLinkFailure, device.ErrNotConnected)
			}
			return nil, e.classify(ctx, "waiting for end of stream", err)
		}

		frame := DecodeNotification(data, cmd)
		switch frame.Kind {
		case FrameEnd:
			return readings, nil
		case FrameData:
			readings = append(readings, frame.Readings...)
		default:
			log.WithFields(logrus.Fields{
				"kind":   frame.Kind.String(),
				"opcode": fmt.Sprintf("0x%02x", frame.Opcode),
				"bytes":  len(data),
			}).Debug("Notification ignored")
		}
	}
}

// classify maps an exchange failure to the error kinds callers act on: a
// caller deadline is a timeout, anything else from the transport is a link
// failure unless it already carries a kind.
func (e *Engine) classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, op, ctxErr)
		}
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return device.LinkFailure(op, err)
}
