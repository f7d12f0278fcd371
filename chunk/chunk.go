// Package chunk splits long text into overlapping pieces sized for
// embedding. Boundaries are chosen in order of preference: paragraph breaks,
// sentence ends, then word breaks.
package chunk

import (
	"strings"
)

const (
	// DefaultSize is the maximum chunk length in bytes.
	DefaultSize = 900

	// DefaultOverlap is how much trailing context is repeated at the start
	// of the next chunk so sentences spanning a boundary stay searchable.
	DefaultOverlap = 200
)

// Splitter breaks text into chunks of at most Size bytes with Overlap bytes
// of carried-over context between consecutive chunks.
type Splitter struct {
	Size    int
	Overlap int
}

// New creates a Splitter, falling back to defaults for non-positive values.
// Overlap is clamped below Size.
func New(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split breaks text into chunks. Text at or under the size limit is returned
// as a single chunk; empty text yields nothing.
func (s Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.Size {
		return []string{text}
	}

	segs := s.segments(text)

	var chunks []string
	var cur strings.Builder
	for _, seg := range segs {
		if cur.Len() > 0 && cur.Len()+1+len(seg) > s.Size {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			// Seed the next chunk with trailing context, unless that would
			// push it past the size limit.
			if s.Overlap > 0 {
				if ov := tail(chunk, s.Overlap); ov != "" && len(ov)+1+len(seg) <= s.Size {
					cur.WriteString(ov)
				}
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(seg)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// segments breaks text into units no longer than Size: paragraphs where they
// fit, else sentences, else word-boundary slices.
func (s Splitter) segments(text string) []string {
	var segs []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= s.Size {
			segs = append(segs, para)
			continue
		}
		for _, sent := range sentences(para) {
			if len(sent) <= s.Size {
				segs = append(segs, sent)
				continue
			}
			segs = append(segs, hardSplit(sent, s.Size)...)
		}
	}
	return segs
}

// sentences splits a paragraph after terminal punctuation followed by a
// space. Abbreviations are not special-cased; a slightly short sentence is
// harmless here.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				out = append(out, strings.TrimSpace(text[start:i+1]))
				start = i + 2
			}
		}
	}
	if start < len(text) {
		if rest := strings.TrimSpace(text[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// hardSplit cuts text into pieces of at most size bytes, preferring word
// breaks.
func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > size {
		cut := strings.LastIndexByte(text[:size], ' ')
		if cut <= 0 {
			cut = size
		}
		out = append(out, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// tail returns the last limit bytes of text, trimmed to a word boundary.
func tail(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := len(text) - limit
	if idx := strings.IndexByte(text[cut:], ' '); idx >= 0 {
		cut += idx + 1
	}
	if cut >= len(text) {
		return ""
	}
	return text[cut:]
}
