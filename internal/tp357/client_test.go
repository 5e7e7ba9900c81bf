package tp357_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/tp357/internal/device"
	goble "github.com/srg/tp357/internal/device/go-ble"
	"github.com/srg/tp357/internal/radio"
	"github.com/srg/tp357/internal/testutils"
	"github.com/srg/tp357/internal/tp357"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var errDial = errors.New("hci: connection failed to be established")

type ClientTestSuite struct {
	testutils.PeripheralSuite
	gate *radio.Gate
}

func (s *ClientTestSuite) SetupTest() {
	s.gate = radio.NewGate(s.Logger)
	s.PeripheralSuite.SetupTest()
}

func (s *ClientTestSuite) options() tp357.ClientOptions {
	opts := tp357.DefaultClientOptions()
	opts.ConnectTimeout = time.Second
	opts.QueryTimeout = 2 * time.Second
	opts.LocateTimeout = time.Second
	opts.DiscoverTimeout = 0
	return opts
}

func (s *ClientTestSuite) newClient(opts tp357.ClientOptions) *tp357.Client {
	adapter, err := goble.NewAdapter(s.Logger)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = adapter.Close() })
	return tp357.NewClient(adapter, s.gate, opts, s.Logger)
}

func (s *ClientTestSuite) dayHistory() *testutils.TP357Peripheral {
	return testutils.NewTP357Peripheral().
		WithAdvertisements(testutils.CreateTP357Advertisement(testAddress, 215, 47, 2).Build()).
		WithHistory(tp357.ModeDay, testutils.NewHistoryBuilder(tp357.ModeDay).Frames(2).End().Build()...)
}

// radioFree reports whether the gate can be taken right now.
func (s *ClientTestSuite) radioFree() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	release, err := s.gate.Acquire(ctx, "check")
	if err != nil {
		return false
	}
	release()
	return true
}

func (s *ClientTestSuite) history(c *tp357.Client, address string, mode tp357.Mode) (tp357.History, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	defer cancel()
	return c.History(ctx, address, mode)
}

func (s *ClientTestSuite) TestHistory_RetryBudget() {
	tests := []struct {
		name          string
		failures      int
		retries       int
		expectErr     bool
		expectedDials int
	}{
		{name: "no failures", failures: 0, retries: 3, expectedDials: 1},
		{name: "recovers within budget", failures: 2, retries: 3, expectedDials: 3},
		{name: "recovers on last retry", failures: 3, retries: 3, expectedDials: 4},
		{name: "budget exhausted", failures: 4, retries: 3, expectErr: true, expectedDials: 4},
		{name: "retries disabled", failures: 1, retries: 0, expectErr: true, expectedDials: 1},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			p := s.Install(s.dayHistory().WithDialFailures(tt.failures, errDial))

			opts := s.options()
			opts.Retries = tt.retries
			h, err := s.history(s.newClient(opts), testAddress, tp357.ModeDay)

			if tt.expectErr {
				s.ErrorIs(err, device.ErrLinkFailure, "the last transient failure MUST be surfaced")
			} else {
				s.Require().NoError(err)
				s.Len(h.Readings, 10)
				s.Equal(testAddress, h.Address)
				s.Equal(tp357.ModeDay, h.Mode)
			}
			p.Device.AssertNumberOfCalls(s.T(), "Dial", tt.expectedDials)
		})
	}
}

func (s *ClientTestSuite) TestHistory_RetriesDroppedLink() {
	p := s.Install(s.dayHistory().WithLinkDrops(2))

	h, err := s.history(s.newClient(s.options()), testAddress, tp357.ModeDay)
	s.Require().NoError(err, "a link dropped mid-stream MUST be retried")
	s.Len(h.Readings, 10, "only the completed exchange contributes readings")
	p.Device.AssertNumberOfCalls(s.T(), "Dial", 3)
}

func (s *ClientTestSuite) TestHistory_PermanentFailuresNotRetried() {
	s.Run("empty result", func() {
		p := s.Install(testutils.NewTP357Peripheral().
			WithHistory(tp357.ModeWeek, testutils.NewHistoryBuilder(tp357.ModeWeek).Frame().End().Build()...))

		_, err := s.history(s.newClient(s.options()), testAddress, tp357.ModeWeek)
		s.ErrorIs(err, tp357.ErrEmptyResult)
		p.Device.AssertNumberOfCalls(s.T(), "Dial", 1)
	})

	s.Run("stream timeout", func() {
		p := s.Install(testutils.NewTP357Peripheral().
			WithHistory(tp357.ModeDay, testutils.NewHistoryBuilder(tp357.ModeDay).Frames(1).Build()...))

		opts := s.options()
		opts.QueryTimeout = 100 * time.Millisecond
		_, err := s.history(s.newClient(opts), testAddress, tp357.ModeDay)
		s.ErrorIs(err, tp357.ErrTimeout)
		p.Device.AssertNumberOfCalls(s.T(), "Dial", 1)
	})

	s.Run("invalid mode", func() {
		p := s.Install(s.dayHistory())

		_, err := s.history(s.newClient(s.options()), testAddress, tp357.Mode("month"))
		s.ErrorIs(err, tp357.ErrInvalidMode)
		p.Device.AssertNotCalled(s.T(), "Scan", mock.Anything, mock.Anything, mock.Anything)
		p.Device.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
	})
}

func (s *ClientTestSuite) TestHistory_LocatesFirstDevice() {
	s.Install(s.dayHistory())

	h, err := s.history(s.newClient(s.options()), "", tp357.ModeDay)
	s.Require().NoError(err)
	s.Equal(testAddress, h.Address, "the located address MUST be queried")
	s.Len(h.Readings, 10)
}

func (s *ClientTestSuite) TestHistory_LocateTimeout() {
	s.Install(testutils.NewTP357Peripheral())

	opts := s.options()
	opts.LocateTimeout = 50 * time.Millisecond
	_, err := s.history(s.newClient(opts), "", tp357.ModeDay)
	s.ErrorIs(err, tp357.ErrTimeout)
}

func (s *ClientTestSuite) TestHistory_DiscoversBeforeConnecting() {
	s.Run("device advertising", func() {
		p := s.Install(s.dayHistory())

		opts := s.options()
		opts.DiscoverTimeout = time.Second
		_, err := s.history(s.newClient(opts), testAddress, tp357.ModeDay)
		s.Require().NoError(err)
		p.Device.AssertNumberOfCalls(s.T(), "Scan", 1)
	})

	s.Run("device silent", func() {
		p := s.Install(testutils.NewTP357Peripheral())

		opts := s.options()
		opts.DiscoverTimeout = 50 * time.Millisecond
		_, err := s.history(s.newClient(opts), testAddress, tp357.ModeDay)
		s.ErrorIs(err, tp357.ErrTimeout)
		p.Device.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
	})
}

func (s *ClientTestSuite) TestAdvertisements() {
	s.Install(testutils.NewTP357Peripheral().WithAdvertisements(
		testutils.CreateTP357Advertisement("AA:00:00:00:00:01", 200, 40, 2).Build(),
		testutils.CreateTP357Advertisement("AA:00:00:00:00:02", 201, 41, 2).Build(),
	))
	client := s.newClient(s.options())

	s.Run("streams until the caller stops", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var got []string
		err := client.Advertisements(ctx, func(r tp357.Reading) error {
			got = append(got, r.Address)
			if len(got) == 2 {
				s.False(s.radioFree(), "the radio MUST be held while scanning")
				cancel()
			}
			return nil
		})
		s.NoError(err, "a done context MUST end the session cleanly")
		s.Equal([]string{"AA:00:00:00:00:01", "AA:00:00:00:00:02"}, got)
	})

	s.Run("callback error ends the session", func() {
		stop := errors.New("sink closed")
		err := client.Advertisements(context.Background(), func(tp357.Reading) error {
			return stop
		})
		s.ErrorIs(err, stop)

		s.True(s.radioFree(), "the radio MUST be released after the session")
	})
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
