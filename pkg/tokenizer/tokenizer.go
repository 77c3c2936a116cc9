package tokenizer

import (
	"strings"
)

// CountTokens gives a rough token estimate for English text, about four
// tokens per three words. Non-empty input counts at least one token.
func CountTokens(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return max(len(words)*4/3, 1)
}

// CountAll sums CountTokens over texts.
func CountAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += CountTokens(t)
	}
	return total
}
