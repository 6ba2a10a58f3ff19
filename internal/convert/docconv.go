// Package convert holds strategies that turn structured documents (HTML, office files, PDFs)
// into plain text through converter libraries rather than OCR.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// Docconv converts PDF, office and HTML documents with sajari/docconv.
type Docconv struct {
	readability bool
	logger      *slog.Logger
}

func NewDocconv(useReadability bool, logger *slog.Logger) *Docconv {
	if logger == nil {
		logger = slog.Default()
	}
	return &Docconv{readability: useReadability, logger: logger}
}

func (d *Docconv) Name() string { return constants.StrategyDocconv }

func (d *Docconv) Extract(ctx context.Context, doc extract.Document) (string, error) {
	contentType := d.contentType(doc)
	if contentType == "" {
		return "", fmt.Errorf("docconv: unsupported format %q", doc.Format())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(doc.Content), contentType, d.readability)
	if err != nil {
		return "", fmt.Errorf("docconv: %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Body)
	if text == "" {
		return "", fmt.Errorf("docconv: empty text for %s", contentType)
	}
	d.logger.Debug("docconv.ok", "document_id", doc.ID, "content_type", contentType, "chars", len(text))
	return text, nil
}

// contentType picks the MIME type docconv dispatches on, preferring the document's own.
func (d *Docconv) contentType(doc extract.Document) string {
	switch doc.Format() {
	case constants.PDF, constants.OFFICE, constants.HTML:
	default:
		return ""
	}
	if mt, _, _ := strings.Cut(doc.MIMEType, ";"); strings.TrimSpace(mt) != "" {
		return strings.ToLower(strings.TrimSpace(mt))
	}
	return constants.MIMEByExt(doc.Ext())
}
