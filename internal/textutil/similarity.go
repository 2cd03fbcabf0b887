// Package textutil provides the text normalization and similarity
// primitives used by the OCR ensemble and the quality gates.
package textutil

import (
	"strings"
)

var ligatures = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"\r\n", "\n",
)

// Normalize prepares text for similarity comparison: ligatures expanded,
// whitespace collapsed, lowercased.
func Normalize(text string) string {
	normalized := ligatures.Replace(text)
	normalized = strings.ReplaceAll(normalized, "\n", " ")
	return strings.ToLower(strings.Join(strings.Fields(normalized), " "))
}

// Levenshtein computes the edit distance between two word sequences.
func Levenshtein(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			insert := curr[j-1] + 1
			del := prev[j] + 1
			replace := prev[j-1]
			if a[i-1] != b[j-1] {
				replace++
			}
			curr[j] = min(insert, min(del, replace))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// WordErrorRate returns the WER of hypothesis against reference.
// The second return is false when the reference has no words.
func WordErrorRate(reference, hypothesis string) (float64, bool) {
	refWords := strings.Fields(Normalize(reference))
	hypWords := strings.Fields(Normalize(hypothesis))
	if len(refWords) == 0 {
		return 0, false
	}
	return float64(Levenshtein(refWords, hypWords)) / float64(len(refWords)), true
}

// SimilarityRatio returns 1 - WER clamped to [0, 1], the similarity
// signal used for both consensus scoring and native/OCR agreement. The
// second return is false when the reference is empty.
func SimilarityRatio(reference, hypothesis string) (float64, bool) {
	wer, ok := WordErrorRate(reference, hypothesis)
	if !ok {
		return 0, false
	}
	if wer > 1 {
		return 0, true
	}
	return 1.0 - wer, true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
