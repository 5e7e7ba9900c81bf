package tp357

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModes_Order(t *testing.T) {
	assert.Equal(t, []Mode{ModeDay, ModeWeek, ModeYear}, Modes())
}

func TestNewQueryCommand(t *testing.T) {
	tests := []struct {
		mode     Mode
		request  [6]byte
		interval time.Duration
		origin   time.Time
	}{
		{
			mode:     ModeDay,
			request:  [6]byte{0xa7, 0, 0, 0, 0, 0x7a},
			interval: time.Minute,
			origin:   testNow.Add(-24 * time.Hour).Add(time.Minute),
		},
		{
			mode:     ModeWeek,
			request:  [6]byte{0xa6, 0, 0, 0, 0, 0x6a},
			interval: time.Hour,
			origin:   testNow.Add(-7 * 24 * time.Hour).Add(time.Hour),
		},
		{
			mode:     ModeYear,
			request:  [6]byte{0xa8, 0, 0, 0, 0, 0x8a},
			interval: time.Hour,
			origin:   testNow.Add(-365 * 24 * time.Hour).Add(-time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			cmd, err := NewQueryCommand(tt.mode, testNow)
			require.NoError(t, err)

			assert.Equal(t, tt.mode, cmd.Mode)
			assert.Equal(t, tt.request, cmd.Request)
			assert.Equal(t, tt.request[0], cmd.Opcode())
			assert.Equal(t, tt.interval, cmd.Interval)
			assert.Equal(t, tt.origin, cmd.Origin)
			assert.Equal(t, tt.origin.Add(3*tt.interval), cmd.SampleTime(3))
		})
	}
}

func TestNewQueryCommand_InvalidMode(t *testing.T) {
	_, err := NewQueryCommand(Mode("month"), testNow)
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestQueryCommand_RequestBytesIsACopy(t *testing.T) {
	cmd, err := NewQueryCommand(ModeDay, testNow)
	require.NoError(t, err)

	b := cmd.RequestBytes()
	b[0] = 0x00

	assert.Equal(t, byte(0xa7), cmd.Opcode(), "callers MUST NOT be able to mutate the command")
	again, _ := NewQueryCommand(ModeDay, testNow)
	assert.Equal(t, byte(0xa7), again.Opcode())
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{input: "day", expected: ModeDay},
		{input: "WEEK", expected: ModeWeek},
		{input: " year ", expected: ModeYear},
		{input: "month", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}
}

func TestMode_Truncate(t *testing.T) {
	ts := time.Date(2024, 3, 10, 12, 34, 56, 789, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 10, 12, 34, 0, 0, time.UTC), ModeDay.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), ModeWeek.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), ModeYear.Truncate(ts))
	assert.Equal(t, time.Date(2024, 3, 10, 12, 34, 56, 0, time.UTC), Mode("adv").Truncate(ts))

	// half-hour offset zones keep their local hour boundary
	kolkata := time.FixedZone("IST", 5*3600+1800)
	local := time.Date(2024, 3, 10, 18, 4, 56, 0, kolkata)
	assert.Equal(t, time.Date(2024, 3, 10, 18, 0, 0, 0, kolkata), ModeWeek.Truncate(local))
}

func TestMode_TimeLayout(t *testing.T) {
	ts := time.Date(2024, 3, 10, 12, 34, 56, 0, time.UTC)

	assert.Equal(t, "2024-03-10T12:34", ts.Format(ModeDay.TimeLayout()))
	assert.Equal(t, "2024-03-10T12", ts.Format(ModeWeek.TimeLayout()))
	assert.Equal(t, time.RFC3339, Mode("adv").TimeLayout())
	assert.NotEmpty(t, ModeYear.Help())
}
