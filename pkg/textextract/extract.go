package textextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrMalformedPDF    = errors.New("malformed PDF")
)

type ExtractedText struct {
	Content string
	Pages   int
	Type    string
}

// TypeOf returns the lower-cased extension of filename without the dot.
func TypeOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch strings.TrimPrefix(strings.ToLower(fileType), ".") {
	case "pdf", "application/pdf":
		return extractPDF(data, size)
	case "txt", "text/plain":
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

// ExtractBytes is Extract over an in-memory file.
func ExtractBytes(content []byte, fileType string) (*ExtractedText, error) {
	return Extract(bytes.NewReader(content), int64(len(content)), fileType)
}

func SupportedTypes() []string {
	return []string{"pdf", "txt"}
}

// extractPDF concatenates the plain text of every page, one newline after
// each. Pages that fail to decode are skipped. The pdf package panics on
// some malformed input; that is reported as an error.
func extractPDF(data io.ReaderAt, size int64) (out *ExtractedText, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrMalformedPDF, r)
		}
	}()

	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "page", i, "error", err)
			continue
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}

	return &ExtractedText{Content: buf.String(), Pages: numPages, Type: "pdf"}, nil
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	if _, err := data.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}
	return &ExtractedText{Content: string(buf), Pages: 1, Type: "txt"}, nil
}
