// Package ocr wraps poppler and tesseract as extraction strategies, page renderers and image readers.
package ocr

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir         string
	HeicConverter       string // "heif-convert" | "magick" | "sips"
	EnableTSVConfidence bool
	Preprocess          bool // grayscale/contrast/sharpen pages before reading

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

func (c Config) withDefaults() Config {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// toolbox is the state shared by every tool in this package.
type toolbox struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func newToolbox(cfg Config, runner Runner, logger *slog.Logger) toolbox {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return toolbox{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

// withTempFile writes data to a private temp dir as name and calls fn with its path and the dir.
func withTempFile(data []byte, name string, fn func(path, dir string) error) error {
	dir, err := os.MkdirTemp("", "invoicex-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write temp input: %w", err)
	}
	return fn(path, dir)
}
