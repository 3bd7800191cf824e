// Package budget provides token estimation and history trimming for prompts
// sent to the answer model. Backends use different tokenizers, so estimation
// uses a conservative character heuristic: 1 token ≈ 4 characters of code or
// English prose.
package budget

import "unicode/utf8"

// charsPerToken is the character-to-token ratio used for estimation.
const charsPerToken = 4

// Estimate returns a rough token count for s. Any non-empty string costs at
// least one token.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && s != "" {
		return 1
	}
	return n
}

// Window returns the last n items, or all of them when there are fewer.
// A non-positive n yields an empty slice.
func Window[T any](items []T, n int) []T {
	if n <= 0 {
		return items[:0:0]
	}
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// TrimOldest drops items from the front until fixedTokens plus the cost of
// the remaining items fits within maxTokens. fixedTokens accounts for prompt
// parts that are never dropped. A non-positive maxTokens disables trimming.
// If the fixed part alone exceeds the budget, every item is dropped.
func TrimOldest[T any](items []T, cost func(T) int, fixedTokens, maxTokens int) []T {
	if maxTokens <= 0 || len(items) == 0 {
		return items
	}
	total := fixedTokens
	for _, it := range items {
		total += cost(it)
	}
	for len(items) > 0 && total > maxTokens {
		total -= cost(items[0])
		items = items[1:]
	}
	return items
}
