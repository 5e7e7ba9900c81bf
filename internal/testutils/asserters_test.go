package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserter(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []TextOption
		pass     bool
	}{
		{name: "identical", actual: "a\nb\n", expected: "a\nb\n", pass: true},
		{name: "trailing whitespace ignored", actual: "a  \nb\t\n", expected: "a\nb", pass: true},
		{name: "surrounding blank lines trimmed", actual: "\n\na\n", expected: "a", pass: true},
		{name: "different line", actual: "a\nc\n", expected: "a\nb\n", pass: false},
		{name: "empty lines significant by default", actual: "a\n\nb", expected: "a\nb", pass: false},
		{name: "empty lines ignored", actual: "a\n\nb", expected: "a\nb", opts: []TextOption{WithIgnoreEmptyLines(true)}, pass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewTextAsserter(rec, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.pass, ok)
			assert.Equal(t, tt.pass, len(rec.errors) == 0)
		})
	}
}

func TestTextAsserter_DiffShowsBothSides(t *testing.T) {
	diff := NewTextAsserter(t).Diff("temp 21.5\n", "temp 22.5\n")
	assert.Contains(t, diff, "-temp 22.5")
	assert.Contains(t, diff, "+temp 21.5")
}

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []Option
		pass     bool
	}{
		{
			name:     "presence placeholder",
			actual:   `{"time":"2024-01-01T00:00:00Z","temp":21.5}`,
			expected: `{"time":"<<PRESENCE>>","temp":21.5}`,
			pass:     true,
		},
		{
			name:     "placeholder requires the key",
			actual:   `{"temp":21.5}`,
			expected: `{"time":"<<PRESENCE>>","temp":21.5}`,
			pass:     false,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"temp":21.5,"rssi":-60}`,
			expected: `{"temp":21.5}`,
			pass:     true,
		},
		{
			name:     "extra keys significant",
			actual:   `{"temp":21.5,"rssi":-60}`,
			expected: `{"temp":21.5}`,
			opts:     []Option{WithIgnoreExtraKeys(false)},
			pass:     false,
		},
		{
			name:     "ignored fields",
			actual:   `[{"time":"a","temp":1},{"time":"b","temp":2}]`,
			expected: `[{"time":"x","temp":1},{"time":"y","temp":2}]`,
			opts:     []Option{WithIgnoredFields("time")},
			pass:     true,
		},
		{
			name:     "value mismatch",
			actual:   `[{"temp":1}]`,
			expected: `[{"temp":2}]`,
			pass:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewJSONAsserter(rec, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.pass, ok, rec.errors)
		})
	}
}

func TestJSONAsserter_AssertLines(t *testing.T) {
	lines := "{\"hum_rh\":47}\n{\"hum_rh\":48}\n"
	assert.True(t, NewJSONAsserter(t).AssertLines(lines, `[{"hum_rh":47},{"hum_rh":48}]`))
}
