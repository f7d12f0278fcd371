package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortText(t *testing.T) {
	s := New(0, -1)
	assert.Equal(t, DefaultSize, s.Size)
	assert.Equal(t, DefaultOverlap, s.Overlap)

	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\n  "))
	assert.Equal(t, []string{"one short note"}, s.Split("one short note"))
}

func TestSplitRespectsSizeLimit(t *testing.T) {
	s := New(100, 20)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("This is sentence number whatever in a long running document. ")
	}
	chunks := s.Split(b.String())

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 100, "chunk %d exceeds size", i)
		assert.NotEmpty(t, c)
		assert.Equal(t, strings.TrimSpace(c), c, "chunk %d has ragged edges", i)
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := New(60, 0)
	text := "First paragraph stays whole.\n\nSecond paragraph also stays whole.\n\nThird one too."

	chunks := s.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "First paragraph stays whole.", chunks[0])
	assert.Equal(t, "Second paragraph also stays whole. Third one too.", chunks[1])
}

func TestSplitCarriesOverlap(t *testing.T) {
	s := New(80, 30)
	text := "Alpha beta gamma delta epsilon zeta eta theta. Iota kappa lambda mu nu xi omicron pi. Rho sigma tau upsilon phi chi psi omega."

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	// The second chunk repeats trailing words of the first.
	firstWords := strings.Fields(chunks[0])
	lastWord := firstWords[len(firstWords)-1]
	assert.Contains(t, chunks[1], lastWord)
}

func TestSplitHandlesUnbrokenText(t *testing.T) {
	s := New(50, 10)
	text := strings.Repeat("x", 240)

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50)
		total += len(c)
	}
	assert.GreaterOrEqual(t, total, 240, "no content may be dropped")
}

func TestSentences(t *testing.T) {
	got := sentences("One sentence. Another one! A question? The last")
	assert.Equal(t, []string{"One sentence.", "Another one!", "A question?", "The last"}, got)
}
