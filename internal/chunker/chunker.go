package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/liliang-cn/askcorpus/internal/domain"
)

// Chunker splits documents into bounded-size passages on semantic boundaries,
// preferring paragraph breaks, then sentence breaks, and only falling back to
// a hard cut when a single sentence exceeds the size budget. Consecutive
// chunks share an overlap window so context survives chunk boundaries.
//
// Every chunk's text is a literal substring of the document, so concatenating
// the chunks minus their overlap reproduces the original text exactly.
type Chunker struct {
	maxSize int // maximum chunk length in bytes
	overlap int // bytes shared with the preceding chunk
}

// New creates a chunker. The overlap must leave room for actual content
// within the maximum chunk size.
func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size %d must be positive", domain.ErrChunking, maxSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d must not be negative", domain.ErrChunking, overlap)
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max size %d", domain.ErrChunking, overlap, maxSize)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// span is a half-open byte range into the document text.
type span struct {
	start, end int
}

// Split breaks a document into ordered chunks. Empty documents produce no
// chunks. The result is deterministic for identical input and configuration.
func (c *Chunker) Split(doc domain.Document) []domain.Chunk {
	text := doc.Content
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// The body of each chunk is bounded by maxSize minus the overlap prefix
	// prepended to every chunk after the first.
	budget := c.maxSize - c.overlap

	units := semanticUnits(text, budget)
	bodies := mergeUnits(units, budget)

	chunks := make([]domain.Chunk, 0, len(bodies))
	for i, b := range bodies {
		start := b.start
		if i > 0 && c.overlap > 0 {
			start -= c.overlap
			if start < 0 {
				start = 0
			}
			start = runeCeil(text, start)
		}
		chunks = append(chunks, domain.Chunk{
			ID:      fmt.Sprintf("%s#%05d", doc.Source, i),
			Source:  doc.Source,
			Ordinal: i,
			Start:   start,
			Text:    text[start:b.end],
		})
	}
	return chunks
}

// semanticUnits covers the whole text with contiguous spans, each within the
// budget where possible: paragraphs first, oversized paragraphs split into
// sentences, oversized sentences hard-cut.
func semanticUnits(text string, budget int) []span {
	var units []span
	for _, p := range paragraphSpans(text) {
		if p.end-p.start <= budget {
			units = append(units, p)
			continue
		}
		for _, s := range sentenceSpans(text, p) {
			if s.end-s.start <= budget {
				units = append(units, s)
				continue
			}
			units = append(units, hardCut(text, s, budget)...)
		}
	}
	return units
}

// paragraphSpans splits on blank lines, keeping each separator run attached
// to the paragraph it terminates so the spans tile the text without gaps.
func paragraphSpans(text string) []span {
	var spans []span
	start := 0
	for start < len(text) {
		rel := strings.Index(text[start:], "\n\n")
		if rel < 0 {
			spans = append(spans, span{start, len(text)})
			break
		}
		end := start + rel
		for end < len(text) && text[end] == '\n' {
			end++
		}
		spans = append(spans, span{start, end})
		start = end
	}
	return spans
}

// sentenceSpans splits a span after sentence-ending punctuation, keeping the
// trailing whitespace run attached to the sentence it follows.
func sentenceSpans(text string, p span) []span {
	var spans []span
	start := p.start
	for i := p.start; i < p.end; i++ {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			for j < p.end && (text[j] == ' ' || text[j] == '\t' || text[j] == '\n') {
				j++
			}
			if j > i+1 || j == p.end {
				spans = append(spans, span{start, j})
				start = j
				i = j - 1
			}
		}
	}
	if start < p.end {
		spans = append(spans, span{start, p.end})
	}
	return spans
}

// hardCut slices a span into budget-sized pieces on rune boundaries.
func hardCut(text string, s span, budget int) []span {
	var spans []span
	start := s.start
	for start < s.end {
		end := start + budget
		if end >= s.end {
			spans = append(spans, span{start, s.end})
			break
		}
		end = runeFloor(text, end)
		if end <= start {
			// budget smaller than one rune; take the rune anyway
			_, size := utf8.DecodeRuneInString(text[start:])
			end = start + size
		}
		spans = append(spans, span{start, end})
		start = end
	}
	return spans
}

// mergeUnits greedily coalesces adjacent units while the merged span stays
// within the budget.
func mergeUnits(units []span, budget int) []span {
	var merged []span
	for _, u := range units {
		if n := len(merged); n > 0 && u.end-merged[n-1].start <= budget {
			merged[n-1].end = u.end
			continue
		}
		merged = append(merged, u)
	}
	return merged
}

// runeFloor moves pos back to the nearest rune start.
func runeFloor(text string, pos int) int {
	for pos > 0 && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

// runeCeil moves pos forward to the nearest rune start.
func runeCeil(text string, pos int) int {
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}
