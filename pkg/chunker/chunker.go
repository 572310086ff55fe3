// Package chunker segments source text into overlapping windows. It is a
// stateless utility: the store consumes the resulting chunk records and
// never re-segments. Positions count runes, not bytes, so CJK text windows
// evenly.
package chunker

import (
	"fmt"
	"time"

	"github.com/soundprediction/chronicle/pkg/types"
)

const (
	// DefaultWindowSize is the rune length of one chunk.
	DefaultWindowSize = 1000
	// DefaultOverlap is how many runes consecutive chunks share.
	DefaultOverlap = 200
)

// Chunker produces overlapping windows from source text.
type Chunker struct {
	windowSize int
	overlap    int
}

// New creates a Chunker. windowSize must be positive and overlap must be
// smaller than windowSize.
func New(windowSize, overlap int) (*Chunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if overlap < 0 || overlap >= windowSize {
		return nil, fmt.Errorf("overlap must be in [0, window size), got %d", overlap)
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}, nil
}

// NewDefault creates a Chunker with the default window and overlap.
func NewDefault() *Chunker {
	c, _ := New(DefaultWindowSize, DefaultOverlap)
	return c
}

// Split windows the text. Each chunk records its rune span in the source,
// how much it shares with its neighbors, and its position in the sequence.
// worldTime stamps every chunk; empty text yields no chunks.
func (c *Chunker) Split(text string, worldTime time.Time) []types.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	stride := c.windowSize - c.overlap
	var chunks []types.Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + c.windowSize
		if end > len(runes) {
			end = len(runes)
		}

		overlapBefore := 0
		if start > 0 {
			overlapBefore = c.overlap
		}
		overlapAfter := 0
		if end < len(runes) {
			overlapAfter = c.overlap
		}

		chunks = append(chunks, types.Chunk{
			Content:       string(runes[start:end]),
			StartPos:      start,
			EndPos:        end,
			OverlapBefore: overlapBefore,
			OverlapAfter:  overlapAfter,
			SequenceIndex: len(chunks),
			WorldTime:     worldTime,
		})

		if end == len(runes) {
			break
		}
	}
	return chunks
}
