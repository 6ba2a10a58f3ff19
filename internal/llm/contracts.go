package llm

import (
	"context"

	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// Transcriber is implemented by the model-backed readers. Each call turns one page image into
// the plain text printed on it; field extraction still happens in the regex parser.
type Transcriber interface {
	extract.ImageReader
	Model() string
}

// TranscribeFunc adapts a function to extract.ImageReader, mostly for tests.
type TranscribeFunc func(ctx context.Context, page extract.Page) (string, error)

func (f TranscribeFunc) ReadImage(ctx context.Context, page extract.Page) (string, error) {
	return f(ctx, page)
}
