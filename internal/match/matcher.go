// Package match implements fuzzy matching of transaction particulars
// against previously categorized transactions.
package match

import "strings"

// SimilarityThreshold is the minimum similarity for a historical transaction
// to be considered a match. The comparison is strict: a score of exactly
// 0.70 does not match.
const SimilarityThreshold = 0.7

// HistoryLimit caps how many historical transactions are scanned per lookup.
const HistoryLimit = 100

// Similarity returns the normalized Levenshtein similarity of two strings
// in [0, 1]. The comparison is case-insensitive. Two empty strings are
// identical (1.0).
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1.0
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}

	return float64(maxLen-levenshtein(a, b)) / float64(maxLen)
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Candidate is a historical transaction offered to BestMatch. Candidates
// must be supplied newest first.
type Candidate struct {
	Particulars string
	LedgerID    uint
	Narration   string
}

// Result is a successful fuzzy match.
type Result struct {
	Candidate Candidate
	Score     float64
}

// BestMatch scans candidates in order and returns the first whose
// particulars exceed the similarity threshold, or nil if none does. The
// scan stops at the first hit rather than searching for the global maximum,
// so with newest-first input the most recent qualifying transaction wins.
func BestMatch(particulars string, candidates []Candidate) *Result {
	if len(candidates) > HistoryLimit {
		candidates = candidates[:HistoryLimit]
	}
	for _, c := range candidates {
		score := Similarity(particulars, c.Particulars)
		if score > SimilarityThreshold {
			return &Result{Candidate: c, Score: score}
		}
	}
	return nil
}
