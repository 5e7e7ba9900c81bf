package testutils

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/tp357/internal/device/go-ble"
	"github.com/stretchr/testify/suite"
)

// PeripheralSuite provides a testify suite whose go-ble device factory hands
// out a simulated TP357.
//
//	type QuerySuite struct {
//	    testutils.PeripheralSuite
//	}
//
//	func (s *QuerySuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithHistory(tp357.ModeDay, testutils.NewHistoryBuilder(tp357.ModeDay).Frames(1).End().Build()...)
//
//	    s.PeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type PeripheralSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	Peripheral *TP357Peripheral

	originalDeviceFactory func() (ble.Device, error)
}

// SetupSuite runs once before all tests in the suite.
func (s *PeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
	s.originalDeviceFactory = goble.DeviceFactory
}

// SetupTest installs the configured peripheral, or a silent default one.
func (s *PeripheralSuite) SetupTest() {
	if s.Peripheral == nil {
		s.Peripheral = NewTP357Peripheral()
	}

	dev := s.Peripheral.Build()
	goble.DeviceFactory = func() (ble.Device, error) {
		return dev, nil
	}
	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest restores the device factory and resets the peripheral.
func (s *PeripheralSuite) TearDownTest() {
	if s.Peripheral != nil {
		s.Peripheral.WaitDelivered()
	}
	if s.originalDeviceFactory != nil {
		goble.DeviceFactory = s.originalDeviceFactory
	}
	s.Peripheral = nil
}

// WithPeripheral returns the peripheral for configuration in SetupTest
// before the parent SetupTest runs.
func (s *PeripheralSuite) WithPeripheral() *TP357Peripheral {
	if s.Peripheral == nil {
		s.Peripheral = NewTP357Peripheral()
	}
	return s.Peripheral
}

// Install swaps in p from inside a test method.
func (s *PeripheralSuite) Install(p *TP357Peripheral) *TP357Peripheral {
	if s.Peripheral != nil {
		s.Peripheral.WaitDelivered()
	}
	s.Peripheral = p
	dev := p.Build()
	goble.DeviceFactory = func() (ble.Device, error) {
		return dev, nil
	}
	return p
}
