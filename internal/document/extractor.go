package document

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileType string) (*textextract.ExtractedText, error)
}

type extractor struct{}

func NewTextExtractor() TextExtractor {
	return extractor{}
}

func (extractor) Extract(ctx context.Context, data []byte, fileType string) (*textextract.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := textextract.ExtractBytes(data, fileType)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return result, nil
}
