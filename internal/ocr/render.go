package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// Renderer turns PDFs (via pdftoppm) and images into page images for an ImageReader.
type Renderer struct {
	toolbox
}

func NewRenderer(cfg Config, runner Runner, logger *slog.Logger) *Renderer {
	return &Renderer{toolbox: newToolbox(cfg, runner, logger)}
}

func (r *Renderer) Render(ctx context.Context, doc extract.Document) ([]extract.Page, error) {
	var pages []extract.Page
	var err error
	switch doc.Format() {
	case constants.PDF:
		pages, err = r.renderPDF(ctx, doc)
	case constants.IMAGE:
		pages, err = r.renderImage(ctx, doc)
	default:
		return nil, fmt.Errorf("render: unsupported format %q", doc.Format())
	}
	if err != nil {
		return nil, err
	}
	if !r.cfg.Preprocess {
		return pages, nil
	}
	for i := range pages {
		enhanced, err := Enhance(pages[i].Data)
		if err != nil {
			r.logger.Warn("render.preprocess.failed", "document_id", doc.ID, "page", pages[i].Number, "error", err)
			continue
		}
		pages[i].Data, pages[i].Format = enhanced, "png"
	}
	return pages, nil
}

func (r *Renderer) renderPDF(ctx context.Context, doc extract.Document) ([]extract.Page, error) {
	var pages []extract.Page
	err := withTempFile(doc.Content, "in.pdf", func(path, dir string) error {
		prefix := filepath.Join(dir, "page")
		// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
		args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png"}
		if r.cfg.MaxPages > 0 {
			args = append(args, "-l", strconv.Itoa(r.cfg.MaxPages))
		}
		args = append(args, path, prefix)
		if _, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, args...); err != nil {
			return fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
		}

		// collect generated pngs (page-1.png, page-2.png, ... zero-padded for large docs)
		matches, _ := filepath.Glob(prefix + "-*.png")
		sort.Slice(matches, func(i, j int) bool { return pageNumber(matches[i]) < pageNumber(matches[j]) })
		if r.cfg.MaxPages > 0 && len(matches) > r.cfg.MaxPages {
			matches = matches[:r.cfg.MaxPages]
		}
		if len(matches) == 0 {
			return fmt.Errorf("pdftoppm produced no images")
		}
		for i, m := range matches {
			data, err := os.ReadFile(m)
			if err != nil {
				return fmt.Errorf("read page %d: %w", i+1, err)
			}
			pages = append(pages, extract.Page{Number: i + 1, Format: "png", Data: data})
		}
		return nil
	})
	return pages, err
}

func (r *Renderer) renderImage(ctx context.Context, doc extract.Document) ([]extract.Page, error) {
	ext := doc.Ext()
	if !constants.IsHEICExt(ext) && !strings.HasPrefix(doc.MIMEType, "image/hei") {
		return []extract.Page{{Number: 1, Format: imageFormat(ext), Data: doc.Content}}, nil
	}
	png, err := convertHEICtoPNG(ctx, r.runner, r.cfg.HeicConverter, doc.Content)
	if err != nil {
		r.logger.Error("ocr.heic.failed", "document_id", doc.ID, "error", err)
		return nil, err
	}
	return []extract.Page{{Number: 1, Format: "png", Data: png}}, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	n, _ := strconv.Atoi(base[strings.LastIndex(base, "-")+1:])
	return n
}

func imageFormat(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "jpeg"
	case "tif", "tiff":
		return "tiff"
	case "":
		return "png"
	}
	return ext
}
