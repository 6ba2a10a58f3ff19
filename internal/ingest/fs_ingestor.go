package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	MaxBytes int64 // 0 = unlimited
	logger   *slog.Logger
}

func NewFSIngestor(maxBytes int64, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{MaxBytes: maxBytes, logger: logger}
}

// IngestPath loads one file. id becomes the document id; empty means the file's base name.
func (i *FSIngestor) IngestPath(ctx context.Context, path, id string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	ext := constants.NormalizeExt(filepath.Ext(path))
	if ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}
	out.FileExt = ext

	st, err := os.Stat(path)
	if err != nil {
		return out, err
	}
	if st.IsDir() {
		return out, fmt.Errorf("%s is a directory", path)
	}
	if i.MaxBytes > 0 && st.Size() > i.MaxBytes {
		return out, fmt.Errorf("file is %d bytes, limit is %d", st.Size(), i.MaxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if id == "" {
		id = filepath.Base(path)
	}

	out.Size = int64(len(data))
	out.HashHex = hashHex(data)
	out.Document = extract.Document{
		ID:       id,
		Name:     filepath.Base(path),
		MIMEType: constants.MIMEByExt(ext),
		Content:  data,
	}
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested, and loads each allowed file.
// Document ids are slash-separated paths relative to root. Files whose content hash was already
// seen in this walk are marked Deduplicated and not loaded twice.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats
	seen := dedup{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		id, err := filepath.Rel(root, path)
		if err != nil {
			id = path
		}
		r, err := i.IngestPath(ctx, path, filepath.ToSlash(id))
		if err != nil {
			i.logger.Warn("ingest.file.failed", "path", path, "error", err)
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		if seen.seen(r.HashHex, r.Document.ID) {
			r.Deduplicated = true
			r.Document.Content = nil
			stats.Deduplicated++
		}
		results = append(results, r)
		stats.Succeeded++
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.ok",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}
