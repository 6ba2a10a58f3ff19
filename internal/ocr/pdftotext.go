package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// PDFText reads the embedded text layer of a PDF with poppler's pdftotext.
type PDFText struct {
	toolbox
}

func NewPDFText(cfg Config, runner Runner, logger *slog.Logger) *PDFText {
	return &PDFText{toolbox: newToolbox(cfg, runner, logger)}
}

func (p *PDFText) Name() string { return constants.StrategyPDFToText }

func (p *PDFText) Extract(ctx context.Context, doc extract.Document) (string, error) {
	if doc.Format() != constants.PDF {
		return "", fmt.Errorf("pdftotext: unsupported format %q", doc.Format())
	}
	var text string
	err := withTempFile(doc.Content, "in.pdf", func(path, _ string) error {
		// pdftotext -layout -enc UTF-8 -eol unix [-l N] <path> -
		args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
		if p.cfg.MaxPages > 0 {
			args = append(args, "-l", strconv.Itoa(p.cfg.MaxPages))
		}
		args = append(args, path, "-")
		out, errb, err := p.runner.Run(ctx, p.cfg.Pdftotext, args...)
		if err != nil {
			return fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
		}
		text = string(out)
		return nil
	})
	if err != nil {
		return "", err
	}
	// A form-feed \f is used as page separator by default
	pages := 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	p.logger.Debug("pdftotext.ok", "document_id", doc.ID, "pages", pages, "chars", len(text))
	return text, nil
}
