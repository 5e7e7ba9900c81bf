package tp357

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
	"github.com/srg/tp357/internal/radio"
	"github.com/srg/tp357/internal/retry"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Retries is the transient-failure budget of each history request.
	Retries int
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
	// QueryTimeout bounds one history exchange; zero waits for the end of
	// the stream indefinitely.
	QueryTimeout time.Duration
	// LocateTimeout bounds the wait for the first advertisement when no
	// address is given.
	LocateTimeout time.Duration
	// DiscoverTimeout bounds the scan for the target address before
	// connecting; zero connects directly.
	DiscoverTimeout time.Duration
	Scan            ScanOptions
	// Now anchors history sample times; nil uses time.Now.
	Now func() time.Time
	// OnStateChange observes the phases of every history exchange.
	OnStateChange func(from, to State)
}

// DefaultClientOptions mirrors the defaults of the command-line tool.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Retries:         retry.DefaultRetries,
		ConnectTimeout:  DefaultConnectTimeout,
		QueryTimeout:    60 * time.Second,
		LocateTimeout:   30 * time.Second,
		DiscoverTimeout: 30 * time.Second,
		Scan:            *DefaultScanOptions(),
	}
}

// History is the result of one history request.
type History struct {
	Address  string
	Mode     Mode
	Readings []Reading
}

// Client runs scans and history exchanges against one adapter, holding the
// radio gate for each and retrying transient failures.
type Client struct {
	adapter device.Adapter
	gate    *radio.Gate
	opts    ClientOptions
	logger  *logrus.Logger

	scanner *Scanner
	engine  *Engine
}

// NewClient creates a client. A nil gate uses the process-wide radio gate.
func NewClient(adapter device.Adapter, gate *radio.Gate, opts ClientOptions, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if gate == nil {
		gate = radio.Default()
	}

	return &Client{
		adapter: adapter,
		gate:    gate,
		opts:    opts,
		logger:  logger,
		scanner: NewScanner(adapter, &opts.Scan, logger),
		engine: NewEngine(adapter, logger,
			WithConnectTimeout(opts.ConnectTimeout),
			WithFrameQueueCapacity(opts.Scan.QueueCapacity),
			WithClock(opts.Now),
			WithTransitionHook(opts.OnStateChange)),
	}
}

// Scanner exposes the client's scanner and its last-seen registry.
func (c *Client) Scanner() *Scanner {
	return c.scanner
}

// Advertisements streams readings to fn until ctx is done, fn returns an
// error, or the scan fails. The radio is held for the whole session. A done
// ctx ends the session without error.
func (c *Client) Advertisements(ctx context.Context, fn func(Reading) error) error {
	return c.gate.Do(ctx, "scan", func(ctx context.Context) error {
		st, err := c.scanner.Scan(ctx)
		if err != nil {
			return err
		}
		defer st.Stop()

		for {
			r, err := st.Next(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
			if err := fn(r); err != nil {
				return err
			}
		}
	})
}

// Locate returns the first TP357 reading heard over the air.
func (c *Client) Locate(ctx context.Context) (Reading, error) {
	var r Reading
	err := c.gate.Do(ctx, "locate", func(ctx context.Context) error {
		ctx, cancel := withTimeout(ctx, c.opts.LocateTimeout)
		defer cancel()

		var err error
		r, err = c.scanner.First(ctx)
		return err
	})
	return r, err
}

// History queries the stored history of address. With an empty address the
// first advertising TP357 is located and queried. Transient failures restart
// the whole sequence, up to the configured budget.
func (c *Client) History(ctx context.Context, address string, mode Mode) (History, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return History{}, err
	}

	return retry.DoValue(ctx, c.opts.Retries, func(ctx context.Context) (History, error) {
		target := address
		if target == "" {
			r, err := c.Locate(ctx)
			if err != nil {
				return History{}, err
			}
			target = r.Address
			c.logger.WithField("address", target).Info("Located TP357")
		}

		if c.opts.DiscoverTimeout > 0 {
			err := c.gate.Do(ctx, "discover", func(ctx context.Context) error {
				ctx, cancel := withTimeout(ctx, c.opts.DiscoverTimeout)
				defer cancel()
				return FindAddress(ctx, c.adapter, target, c.logger)
			})
			if err != nil {
				return History{}, err
			}
		}

		var readings []Reading
		err := c.gate.Do(ctx, "query", func(ctx context.Context) error {
			ctx, cancel := withTimeout(ctx, c.opts.QueryTimeout)
			defer cancel()

			var err error
			readings, err = c.engine.Query(ctx, target, mode)
			return err
		})
		if err != nil {
			return History{}, err
		}
		return History{Address: target, Mode: mode, Readings: readings}, nil
	}, retry.WithLogger(c.logger), retry.WithName(fmt.Sprintf("%s query", mode)))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
