package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// FixedClock returns a clock that always reports ts.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

// CreateTP357Advertisement returns a builder for a TP357 advertisement
// carrying the given raw sensor values.
func CreateTP357Advertisement(address string, rawTemp int16, humidity, battery uint8) *AdvertisementBuilder {
	return NewAdvertisementBuilder().
		WithName("TP357 (7216)").
		WithAddress(address).
		WithRSSI(-60).
		WithTP357Reading(rawTemp, humidity, battery)
}
