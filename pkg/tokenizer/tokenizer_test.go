package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens("   "))
	assert.Equal(t, 1, CountTokens("hello"))
	assert.Equal(t, 4, CountTokens("one two three"))
}

func TestCountAll(t *testing.T) {
	assert.Equal(t, 5, CountAll([]string{"hello", "one two three", ""}))
}
