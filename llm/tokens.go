package llm

import (
	"context"
	"unicode/utf8"
)

// TokenCounter is implemented by clients whose provider can count tokens.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// CountTokens measures text with the client's provider when it supports
// counting and falls back to EstimateTokens otherwise. exact reports which
// of the two was used.
func CountTokens(ctx context.Context, client LLMClient, text string) (n int, exact bool, err error) {
	if tc, ok := client.(TokenCounter); ok {
		n, err = tc.CountTokens(ctx, text)
		return n, true, err
	}
	return EstimateTokens(text), false, nil
}

// EstimateTokens approximates the token length of text at four characters
// per token.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
