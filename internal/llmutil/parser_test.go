package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		preferArray bool
		want        string
		wantErr     bool
	}{
		{"bare array", `["#a", ".b"]`, true, `["#a", ".b"]`, false},
		{"fenced array", "```json\n[\"#a\"]\n```", true, `["#a"]`, false},
		{"fenced object", "```\n{\"a\": 1}\n```", false, `{"a": 1}`, false},
		{"conversational array", `Sure! Here you go: ["#a", "#b"] Hope it helps.`, true, `["#a", "#b"]`, false},
		{"array of objects prefers outer array", `Result: [{"selector": "#a"}]`, true, `[{"selector": "#a"}]`, false},
		{"object preferred when asked", `Result: {"items": ["#a"]} done`, false, `{"items": ["#a"]}`, false},
		{"no json", "I could not find any selectors.", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input, tt.preferArray)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type suggestion struct {
		Selector    string `json:"selector"`
		Reliability string `json:"reliability"`
	}

	t.Run("slice target", func(t *testing.T) {
		got, err := ParseJSONResponse[[]suggestion]("Here:\n```json\n[{\"selector\": \"[data-testid=search]\", \"reliability\": \"high\"}]\n```")
		require.NoError(t, err)
		require.Len(t, *got, 1)
		assert.Equal(t, "[data-testid=search]", (*got)[0].Selector)
		assert.Equal(t, "high", (*got)[0].Reliability)
	})

	t.Run("struct target", func(t *testing.T) {
		got, err := ParseJSONResponse[suggestion](`The answer is {"selector": "#q", "reliability": "low"}.`)
		require.NoError(t, err)
		assert.Equal(t, "#q", got.Selector)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseJSONResponse[[]suggestion](`[{"selector": }]`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")
	})
}

func TestParseStringArray(t *testing.T) {
	t.Run("strings", func(t *testing.T) {
		got, err := ParseStringArray(`["#search", "  ", "[aria-label*=\"search\"]"]`, "selector")
		require.NoError(t, err)
		assert.Equal(t, []string{"#search", `[aria-label*="search"]`}, got)
	})

	t.Run("objects", func(t *testing.T) {
		got, err := ParseStringArray(`[{"selector": "#a"}, {"other": "x"}, {"selector": "#b"}]`, "selector")
		require.NoError(t, err)
		assert.Equal(t, []string{"#a", "#b"}, got)
	})

	t.Run("wrapped in object", func(t *testing.T) {
		got, err := ParseStringArray("```json\n{\"selectors\": [\"#a\", \"#b\"]}\n```", "selector")
		require.NoError(t, err)
		assert.Equal(t, []string{"#a", "#b"}, got)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseStringArray(`[#a, #b]`, "selector")
		assert.Error(t, err)
	})

	t.Run("nothing", func(t *testing.T) {
		_, err := ParseStringArray("no idea", "selector")
		assert.ErrorIs(t, err, ErrNoJSON)
	})
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 5))
	assert.Equal(t, "ab...", TruncateString("abcdef", 2))
	assert.Equal(t, "", TruncateString("abc", 0))
}
