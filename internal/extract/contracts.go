package extract

import (
	"context"
	"path/filepath"

	"github.com/joseph-ayodele/invoice-trust/constants"
)

// Document is an opaque byte payload plus an identifier. Strategies only read it.
type Document struct {
	ID       string
	Name     string // original filename, used for format hints
	MIMEType string
	Content  []byte
}

// Format classifies the document using its MIME type, falling back to the file extension.
func (d Document) Format() string {
	if f := constants.MapMIMEToFormat(d.MIMEType); f != "" {
		return f
	}
	return constants.MapExtToFormat(filepath.Ext(d.Name))
}

// Ext returns the normalized extension of the document name.
func (d Document) Ext() string {
	return constants.NormalizeExt(filepath.Ext(d.Name))
}

// Strategy turns a document into text. Implementations must be safe for concurrent use.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc Document) (string, error)
}

// Page is one raster image of a document.
type Page struct {
	Number int
	Format string // "png" | "jpeg" | ...
	Data   []byte
}

// PageRenderer is the document -> page images half of an image-based strategy.
type PageRenderer interface {
	Render(ctx context.Context, doc Document) ([]Page, error)
}

// ImageReader is the image -> text half of an image-based strategy.
type ImageReader interface {
	ReadImage(ctx context.Context, page Page) (string, error)
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, doc Document) (string, error)
}

func (s StrategyFunc) Name() string { return s.Label }

func (s StrategyFunc) Extract(ctx context.Context, doc Document) (string, error) {
	return s.Fn(ctx, doc)
}
