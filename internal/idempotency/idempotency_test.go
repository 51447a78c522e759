package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{
			name:     "empty map",
			input:    map[string]any{},
			expected: "{}",
		},
		{
			name:     "sorted keys",
			input:    map[string]any{"z": 1, "a": 2, "m": 3},
			expected: `{"a":2,"m":3,"z":1}`,
		},
		{
			name: "nested maps",
			input: map[string]any{
				"outer": map[string]any{"z": "last", "a": "first"},
			},
			expected: `{"outer":{"a":"first","z":"last"}}`,
		},
		{
			name:     "arrays preserved",
			input:    map[string]any{"items": []any{"z", "a", "m"}},
			expected: `{"items":["z","a","m"]}`,
		},
		{
			name: "struct fields sorted",
			input: struct {
				Zeta  string `json:"zeta"`
				Alpha int    `json:"alpha"`
			}{Zeta: "z", Alpha: 1},
			expected: `{"alpha":1,"zeta":"z"}`,
		},
		{
			name:     "large integers keep precision",
			input:    map[string]any{"n": int64(9007199254740993)},
			expected: `{"n":9007199254740993}`,
		},
		{
			name:     "nil value",
			input:    nil,
			expected: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CanonicalJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalJSONUnsupported(t *testing.T) {
	_, err := CanonicalJSON(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

type draft struct {
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

func TestIntentKeyDeterministic(t *testing.T) {
	payload := []draft{{Description: "call the bank", Date: "2026-10-20", Time: "09:00"}}

	k1, err := IntentKey("call-1", "create_task", payload)
	require.NoError(t, err)
	k2, err := IntentKey("call-1", "create_task", payload)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "ik:"))
	assert.Len(t, k1, len("ik:")+64)
}

func TestIntentKeyDistinguishesInputs(t *testing.T) {
	payload := []draft{{Description: "call the bank", Date: "2026-10-20", Time: "09:00"}}
	base, err := IntentKey("call-1", "create_task", payload)
	require.NoError(t, err)

	otherCall, err := IntentKey("call-2", "create_task", payload)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherCall)

	otherIntent, err := IntentKey("call-1", "cancel_task", payload)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherIntent)

	moved := []draft{{Description: "call the bank", Date: "2026-10-20", Time: "10:00"}}
	otherTime, err := IntentKey("call-1", "create_task", moved)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherTime)
}
