// Package insight extracts meeting insights (questions, key points, action
// items, decisions) from the conversation with rate-limited consolidated LLM
// analysis and near-duplicate suppression.
package insight

import "strings"

// SimilarityRatio reports how similar two strings are as a
// longest-common-subsequence ratio 2*LCS/(len(a)+len(b)) over lowercased,
// trimmed runes. 1.0 means identical, 0.0 means nothing in common. Two empty
// strings are identical.
func SimilarityRatio(a, b string) float64 {
	ra := []rune(strings.ToLower(strings.TrimSpace(a)))
	rb := []rune(strings.ToLower(strings.TrimSpace(b)))
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(len(ra)+len(rb))
}

// lcsLength computes the longest-common-subsequence length with a two-row
// dynamic program.
func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
