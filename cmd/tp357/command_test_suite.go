package main

import (
	"bytes"
	"time"

	"github.com/srg/tp357/internal/testutils"
	"github.com/srg/tp357/internal/tp357"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "AA:BB:CC:DD:EE:01"
	TestDeviceAddress2 = "AA:BB:CC:DD:EE:02"
)

// testNow is the wall clock commands see during tests.
var testNow = time.Date(2024, 3, 10, 12, 30, 0, 0, time.Local)

// CommandTestSuite runs commands against a simulated TP357.
// All cmd/tp357 test suites should embed this instead of PeripheralSuite.
type CommandTestSuite struct {
	testutils.PeripheralSuite

	originalNow func() time.Time
}

func (s *CommandTestSuite) SetupTest() {
	s.originalNow = now
	now = func() time.Time { return testNow }
	s.PeripheralSuite.SetupTest()
}

func (s *CommandTestSuite) TearDownTest() {
	now = s.originalNow
	s.PeripheralSuite.TearDownTest()
}

// DayPeripheral advertises addresses and answers day queries with frames
// data frames.
func (s *CommandTestSuite) DayPeripheral(frames int, addresses ...string) *testutils.TP357Peripheral {
	p := testutils.NewTP357Peripheral()
	for _, addr := range addresses {
		p.WithAdvertisements(testutils.CreateTP357Advertisement(addr, 215, 47, 2).Build())
	}
	return p.WithHistory(tp357.ModeDay, testutils.NewHistoryBuilder(tp357.ModeDay).Frames(frames).End().Build()...)
}

// ExecuteCommand runs a fresh command tree with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
