package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/constants"
)

// RasterStrategy renders a document into pages and reads each page with an ImageReader.
type RasterStrategy struct {
	label    string
	renderer PageRenderer
	reader   ImageReader
	logger   *slog.Logger
}

func NewRasterStrategy(label string, renderer PageRenderer, reader ImageReader, logger *slog.Logger) *RasterStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RasterStrategy{label: label, renderer: renderer, reader: reader, logger: logger}
}

func (s *RasterStrategy) Name() string { return s.label }

// Extract reads pages in order. A page that fails is skipped; all pages failing fails the strategy.
func (s *RasterStrategy) Extract(ctx context.Context, doc Document) (string, error) {
	pages, err := s.renderer.Render(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	if len(pages) == 0 {
		return "", errors.New("render: no pages")
	}

	var b strings.Builder
	var errs []error
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		txt, err := s.reader.ReadImage(ctx, p)
		if err != nil {
			s.logger.Warn("raster.page.failed", "strategy", s.label, "page", p.Number, "error", err)
			errs = append(errs, fmt.Errorf("page %d: %w", p.Number, err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString(constants.PageBreak)
		}
		b.WriteString(txt)
	}
	if len(errs) == len(pages) {
		return "", errors.Join(errs...)
	}
	return b.String(), nil
}
