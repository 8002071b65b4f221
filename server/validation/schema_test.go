package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTiktoken implements a mock tokenizer for testing
type mockTiktoken struct {
	countTokens func(string) int
}

func (m *mockTiktoken) Encode(text string, allowedSpecial, disallowedSpecial []string) []int {
	tokens := make([]int, m.countTokens(text))
	for i := range tokens {
		tokens[i] = i
	}
	return tokens
}

func (m *mockTiktoken) Decode(tokens []int) string {
	return ""
}

func (m *mockTiktoken) CountTokens(text string) int {
	return m.countTokens(text)
}

// wordCounter counts one token per space-separated word.
func wordCounter() *mockTiktoken {
	return &mockTiktoken{countTokens: func(s string) int {
		return len(strings.Fields(s))
	}}
}

func TestTokenValidation(t *testing.T) {
	counter, err := NewTokenCounterWithTokenizer(wordCounter(), 10)
	require.NoError(t, err)

	tests := []struct {
		name          string
		text          string
		expectedError string
	}{
		{name: "empty", text: ""},
		{name: "within limit", text: "Show me Q3 revenue by region"},
		{name: "exactly at limit", text: strings.Repeat("word ", 10)},
		{name: "over limit", text: strings.Repeat("word ", 11), expectedError: "input has 11 tokens, limit is 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := counter.ValidateTokens(tt.text)
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestNewTokenCounterRejectsNonPositiveLimit(t *testing.T) {
	_, err := NewTokenCounterWithTokenizer(wordCounter(), 0)
	assert.Error(t, err)
}

func TestInputText(t *testing.T) {
	assert.Equal(t, "a", (&GenerateRequest{RawText: "a"}).InputText())
	assert.Equal(t, "b", (&RenderRequest{RawText: "b"}).InputText())
}
