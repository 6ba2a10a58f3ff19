package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// convertHEICtoPNG converts HEIC/HEIF bytes to PNG bytes with the configured converter.
// converter: "heif-convert" | "magick" | "sips"
func convertHEICtoPNG(ctx context.Context, r Runner, converter string, data []byte) ([]byte, error) {
	var png []byte
	err := withTempFile(data, "in.heic", func(in, dir string) error {
		out := filepath.Join(dir, "page.png")

		var args []string
		switch converter {
		case "heif-convert", "magick":
			args = []string{in, out}
		case "sips":
			args = []string{"-s", "format", "png", in, "--out", out}
		default:
			return fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")
		}
		if _, errb, err := r.Run(ctx, converter, args...); err != nil {
			return fmt.Errorf("%s failed: %w: %s", converter, err, strings.TrimSpace(truncate(string(errb), 512)))
		}

		b, err := os.ReadFile(out)
		if err != nil {
			return fmt.Errorf("HEIC conversion produced no output: %w", err)
		}
		png = b
		return nil
	})
	return png, err
}
