// Package server exposes the extraction engine over gRPC and HTTP.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-trust/internal/async"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/repository"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
)

// ExtractionService is shared by the gRPC and HTTP surfaces.
type ExtractionService struct {
	proc    pipeline.DocumentProcessor
	metrics *trust.Metrics
	records repository.RecordRepository
	jobs    async.Queue
	logger  *slog.Logger
}

type ServiceOption func(*ExtractionService)

// WithJobQueue enables background submissions (POST /v1/jobs).
func WithJobQueue(q async.Queue) ServiceOption {
	return func(s *ExtractionService) { s.jobs = q }
}

// Result is the reply to one extraction: the record and, when a sink is configured, its stored id.
type Result struct {
	RecordID string           `json:"record_id,omitempty"`
	Record   *pipeline.Record `json:"record"`
}

// NewExtractionService wires the processor with optional metrics and record sink (either may be nil).
func NewExtractionService(proc pipeline.DocumentProcessor, metrics *trust.Metrics, records repository.RecordRepository, logger *slog.Logger, opts ...ServiceOption) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ExtractionService{proc: proc, metrics: metrics, records: records, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handle adapts Extract to the background queue.
func (s *ExtractionService) Handle(ctx context.Context, doc extract.Document) (async.Output, error) {
	res, err := s.Extract(ctx, doc)
	if err != nil {
		return async.Output{}, err
	}
	return async.Output{RecordID: res.RecordID, Record: res.Record}, nil
}

// Extract processes one document. A failed save is logged; the record is still returned.
func (s *ExtractionService) Extract(ctx context.Context, doc extract.Document) (*Result, error) {
	start := time.Now()
	rec, err := s.proc.Process(ctx, doc)
	if err != nil {
		s.logger.Warn("server.extract.failed", "document_id", doc.ID, "error", err)
		return nil, err
	}
	out := &Result{Record: rec}
	if s.records != nil {
		id, err := s.records.Save(ctx, rec)
		if err != nil {
			s.logger.Error("server.extract.save_failed", "document_id", doc.ID, "error", err)
		} else {
			out.RecordID = id
		}
	}
	s.logger.Info("server.extract.ok",
		"document_id", doc.ID,
		"strategy", rec.Strategy,
		"overall_trust", rec.Trust.Overall,
		"trusted", rec.Trust.Trusted,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Snapshot returns the lifetime metrics, zero when none are kept.
func (s *ExtractionService) Snapshot() trust.Snapshot {
	if s.metrics == nil {
		return trust.Snapshot{}
	}
	return s.metrics.Snapshot()
}

// Recent lists stored records; ok is false when no sink is configured.
func (s *ExtractionService) Recent(ctx context.Context, limit int) ([]repository.StoredRecord, bool, error) {
	if s.records == nil {
		return nil, false, nil
	}
	recs, err := s.records.Recent(ctx, limit)
	return recs, true, err
}
