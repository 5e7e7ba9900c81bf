package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit UUID",
			input:    "2902",
			expected: "2902",
		},
		{
			name:     "16-bit UUID with 0x prefix",
			input:    "0X2902",
			expected: "2902",
		},
		{
			name:     "Full Bluetooth SIG UUID uppercase",
			input:    "00002902-0000-1000-8000-00805F9B34FB",
			expected: "2902",
		},
		{
			name:     "TP357 notify characteristic keeps full form",
			input:    "00010203-0405-0607-0809-0a0b0c0d2b10",
			expected: "000102030405060708090a0b0c0d2b10",
		},
		{
			name:     "Custom UUID with SIG suffix but wrong prefix",
			input:    "AA002902-0000-1000-8000-00805f9b34fb",
			expected: "aa00290200001000800000805f9b34fb",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestValidateUUID(t *testing.T) {
	t.Run("accepts and normalizes valid UUIDs", func(t *testing.T) {
		got, err := ValidateUUID("00010203-0405-0607-0809-0a0b0c0d2b11", "0x180F")
		require.NoError(t, err)
		assert.Equal(t, []string{"000102030405060708090a0b0c0d2b11", "180f"}, got)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := ValidateUUID()
		assert.Error(t, err)

		_, err = ValidateUUID("")
		assert.ErrorContains(t, err, "index 0")
	})

	t.Run("rejects non-hex and odd lengths", func(t *testing.T) {
		_, err := ValidateUUID("zzzz")
		assert.ErrorContains(t, err, "invalid UUID format")

		_, err = ValidateUUID("12345")
		assert.ErrorContains(t, err, "invalid UUID format")
	})
}
