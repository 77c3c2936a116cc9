package chunker

import (
	"errors"
	"fmt"
)

var ErrInvalidOptions = errors.New("chunker: overlap must be smaller than chunk size")

type Chunker interface {
	Chunk(text string) ([]TextChunk, error)
}

type ChunkOptions struct {
	ChunkSize    int // window size in characters
	ChunkOverlap int // characters shared by consecutive windows
}

type TextChunk struct {
	Content string
	Index   int
	Start   int // character offset
	End     int
}

func DefaultOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate reports options whose stride would not advance the window.
func (o ChunkOptions) Validate() error {
	if o.ChunkSize <= 0 || o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("%w (size=%d, overlap=%d)", ErrInvalidOptions, o.ChunkSize, o.ChunkOverlap)
	}
	return nil
}

// Stride is the distance between consecutive window starts.
func (o ChunkOptions) Stride() int {
	return o.ChunkSize - o.ChunkOverlap
}

type windowChunker struct {
	opts ChunkOptions
}

// New returns a sliding-window chunker. It fails when the options would
// make the window stall.
func New(opts ChunkOptions) (Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &windowChunker{opts: opts}, nil
}

// Chunk slides a ChunkSize window across text, advancing by the stride.
// Windows are counted in runes. The last window may be shorter, and no
// window is emitted after one has reached the end of the text.
func (c *windowChunker) Chunk(text string) ([]TextChunk, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	stride := c.opts.Stride()
	chunks := make([]TextChunk, 0, len(runes)/stride+1)

	for start := 0; start < len(runes); start += stride {
		end := min(start+c.opts.ChunkSize, len(runes))

		chunks = append(chunks, TextChunk{
			Content: string(runes[start:end]),
			Index:   len(chunks),
			Start:   start,
			End:     end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}
