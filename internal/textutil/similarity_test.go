package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "first flight", Normalize("ﬁrst  ﬂight"))
	assert.Equal(t, "hello world", Normalize("  Hello\n\tWORLD  "))
	assert.Equal(t, "", Normalize("   "))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein([]string{"a", "b"}, []string{"a", "b"}))
	assert.Equal(t, 1, Levenshtein([]string{"a", "b"}, []string{"a", "c"}))
	assert.Equal(t, 2, Levenshtein([]string{"a"}, []string{"b", "c"}))
	assert.Equal(t, 3, Levenshtein(nil, []string{"a", "b", "c"}))
}

func TestSimilarityRatio(t *testing.T) {
	ratio, ok := SimilarityRatio("hello world", "hello world")
	require.True(t, ok)
	assert.InDelta(t, 1.0, ratio, 1e-9)

	ratio, ok = SimilarityRatio("Hello  World", "hello world")
	require.True(t, ok)
	assert.InDelta(t, 1.0, ratio, 1e-9)

	ratio, ok = SimilarityRatio("hello world", "hello there")
	require.True(t, ok)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	_, ok = SimilarityRatio("", "anything")
	assert.False(t, ok)
}

func TestSimilarityRatioClampsAtZero(t *testing.T) {
	// More edits than reference words must not go negative.
	ratio, ok := SimilarityRatio("one", "completely different longer text")
	require.True(t, ok)
	assert.GreaterOrEqual(t, ratio, 0.0)
}
