package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// Tesseract reads page images with the tesseract CLI.
type Tesseract struct {
	toolbox
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	return &Tesseract{toolbox: newToolbox(cfg, runner, logger)}
}

func (t *Tesseract) ReadImage(ctx context.Context, page extract.Page) (string, error) {
	var text string
	err := withTempFile(page.Data, "page."+page.Format, func(path, _ string) error {
		// tesseract <file> stdout -l <lang>
		out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.args(path)...)
		if err != nil {
			return fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
		}
		text = string(out)

		if t.cfg.EnableTSVConfidence {
			if c, err := t.tsvConfidence(ctx, path); err == nil {
				t.logger.Debug("tesseract.page.confidence", "page", page.Number, "confidence", c)
			} else {
				t.logger.Warn("tesseract.tsv.failed", "page", page.Number, "error", err)
			}
		}
		return nil
	})
	return text, err
}

func (t *Tesseract) args(path string, extra ...string) []string {
	args := []string{path, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, extra...)
}

// tsvConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (t *Tesseract) tsvConfidence(ctx context.Context, path string) (float64, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.args(path, "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	return MeanTSVConfidence(string(out)), nil
}

// MeanTSVConfidence averages the conf column of tesseract TSV output, scaled to 0..1.
// Rows with conf -1 (non-word layout rows) are ignored.
func MeanTSVConfidence(tsv string) float64 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n / 100
}
