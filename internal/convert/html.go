package convert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// HTML renders HTML invoices (emailed bills, portal exports) to markdown text.
// Markup is sanitized first so scripts and styles never reach the field parser.
type HTML struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
	logger *slog.Logger
}

func NewHTML(logger *slog.Logger) *HTML {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTML{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

func (h *HTML) Name() string { return constants.StrategyHTML }

func (h *HTML) Extract(_ context.Context, doc extract.Document) (string, error) {
	if doc.Format() != constants.HTML {
		return "", fmt.Errorf("html: unsupported format %q", doc.Format())
	}
	if !utf8.Valid(doc.Content) {
		return "", fmt.Errorf("html: content is not valid UTF-8")
	}

	clean := h.policy.Sanitize(string(doc.Content))
	md, err := h.conv.ConvertString(clean)
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	md = stripEmphasis(strings.TrimSpace(md))
	if md == "" {
		return "", fmt.Errorf("html: no text content")
	}
	h.logger.Debug("html.ok", "document_id", doc.ID, "chars", len(md))
	return md, nil
}

// stripEmphasis drops bold markers so "**Invoice #:** INV-1" reads as a plain label line.
func stripEmphasis(md string) string {
	return strings.NewReplacer("**", "", "__", "").Replace(md)
}
