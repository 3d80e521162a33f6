package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortText(t *testing.T) {
	s := NewSplitter(100, 10)
	assert.Equal(t, []string{"hello world"}, s.Split("  hello world \n"))
	assert.Nil(t, s.Split("   "))
}

func TestSplitRespectsSizeAndOverlap(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")
	s := NewSplitter(50, 10)

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
		assert.False(t, strings.HasPrefix(c, "ord"), "chunk should not start mid-word: %q", c)
	}
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "word"))
}

func TestSplitWithoutWhitespaceStillProgresses(t *testing.T) {
	text := strings.Repeat("x", 95)
	chunks := NewSplitter(40, 10).Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 40)
	assert.Len(t, chunks[1], 40)
	assert.Len(t, chunks[2], 35)
}

func TestNewSplitterNormalises(t *testing.T) {
	s := NewSplitter(0, -3)
	assert.Equal(t, 1000, s.ChunkSize)
	assert.Equal(t, 0, s.Overlap)

	s = NewSplitter(100, 100)
	assert.Equal(t, 25, s.Overlap)
}
