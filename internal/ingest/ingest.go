package ingest

import (
	"context"

	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// IngestionResult is the per-file ingest outcome. Document is empty when Err is set.
type IngestionResult struct {
	SourcePath   string
	Document     extract.Document
	Deduplicated bool
	HashHex      string
	FileExt      string
	Size         int64
	Err          string
}

// DirStats summarizes a directory or prefix ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the batch commands depend on.
type Ingestor interface {
	// IngestDirectory loads every matching document under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}

// Documents returns the loaded documents, skipping failures and duplicates, in ingest order.
func Documents(results []IngestionResult) []extract.Document {
	docs := make([]extract.Document, 0, len(results))
	for _, r := range results {
		if r.Err != "" || r.Deduplicated {
			continue
		}
		docs = append(docs, r.Document)
	}
	return docs
}

// dedup tracks content hashes seen during one ingest run.
type dedup map[string]string

// seen records hash for id and reports whether it was already present.
func (d dedup) seen(hash, id string) bool {
	if _, ok := d[hash]; ok {
		return true
	}
	d[hash] = id
	return false
}
