// Package azurecv reads page images with the Azure Computer Vision OCR API.
package azurecv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"

	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// Line is one recognized text line with its bounding box.
type Line struct {
	Text   string
	X, Y   int
	Width  int
	Height int
}

// Reader implements extract.ImageReader with RecognizePrintedTextInStream.
type Reader struct {
	client   computervision.BaseClient
	language computervision.OcrLanguages
	logger   *slog.Logger
}

func NewReader(endpoint, apiKey, language string, logger *slog.Logger) (*Reader, error) {
	if endpoint == "" || apiKey == "" {
		return nil, common.NewConfigError("azure: AZURE_VISION_ENDPOINT and AZURE_VISION_KEY are required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if language == "" {
		language = string(computervision.En)
	}
	client := computervision.New(strings.TrimRight(endpoint, "/"))
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return &Reader{client: client, language: computervision.OcrLanguages(language), logger: logger}, nil
}

func (r *Reader) ReadImage(ctx context.Context, page extract.Page) (string, error) {
	if len(page.Data) == 0 {
		return "", fmt.Errorf("azure: page %d is empty", page.Number)
	}
	result, err := r.client.RecognizePrintedTextInStream(ctx, true, io.NopCloser(bytes.NewReader(page.Data)), r.language)
	if err != nil {
		return "", fmt.Errorf("azure ocr: %w", err)
	}
	lines := resultLines(result)
	if len(lines) == 0 {
		return "", fmt.Errorf("azure: no text on page %d", page.Number)
	}
	r.logger.Debug("azure.page.ok", "page", page.Number, "lines", len(lines))
	return LinesToText(lines), nil
}

func resultLines(result computervision.OcrResult) []Line {
	if result.Regions == nil {
		return nil
	}
	var out []Line
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			var sb strings.Builder
			if line.Words != nil {
				for _, w := range *line.Words {
					if w.Text == nil {
						continue
					}
					sb.WriteString(*w.Text)
					sb.WriteByte(' ')
				}
			}
			l := Line{Text: strings.TrimSpace(sb.String())}
			if line.BoundingBox != nil {
				box := parseBox(*line.BoundingBox)
				l.X, l.Y, l.Width, l.Height = box[0], box[1], box[2], box[3]
			}
			if l.Text != "" {
				out = append(out, l)
			}
		}
	}
	return out
}

// parseBox reads Azure's "x,y,w,h" bounding box; missing values are zero.
func parseBox(s string) [4]int {
	var box [4]int
	for i, part := range strings.SplitN(s, ",", 4) {
		box[i], _ = strconv.Atoi(strings.TrimSpace(part))
	}
	return box
}

// LinesToText orders lines top to bottom and joins lines sharing a row left to right, so a label
// in one region stays on the same line as its value in the next.
func LinesToText(lines []Line) string {
	sorted := append([]Line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows [][]Line
	for _, l := range sorted {
		if n := len(rows); n > 0 && sameRow(rows[n-1][0], l) {
			rows[n-1] = append(rows[n-1], l)
			continue
		}
		rows = append(rows, []Line{l})
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		parts := make([]string, len(row))
		for i, l := range row {
			parts[i] = l.Text
		}
		out = append(out, strings.Join(parts, " "))
	}
	return strings.Join(out, "\n")
}

func sameRow(a, b Line) bool {
	tol := a.Height / 2
	if tol == 0 {
		return a.Y == b.Y
	}
	d := b.Y - a.Y
	if d < 0 {
		d = -d
	}
	return d <= tol
}
