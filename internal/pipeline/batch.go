package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

// DocumentProcessor is what a Batch drives; *Processor implements it.
type DocumentProcessor interface {
	Process(ctx context.Context, doc extract.Document) (*Record, error)
}

// Summary counts batch outcomes.
type Summary struct {
	Total     int `json:"total"`
	Extracted int `json:"extracted"`
	Trusted   int `json:"trusted"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Batch processes documents on a fixed pool of workers. Documents are isolated:
// one document's failure never affects another's outcome.
type Batch struct {
	proc    DocumentProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration
}

type BatchOption func(*Batch)

func WithWorkers(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithDocumentTimeout bounds each document end-to-end (0 = no bound beyond strategy timeouts).
func WithDocumentTimeout(d time.Duration) BatchOption {
	return func(b *Batch) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func NewBatch(proc DocumentProcessor, logger *slog.Logger, opts ...BatchOption) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Batch{proc: proc, logger: logger, workers: 4}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Run processes docs and returns one outcome per document in input order.
// Cancelling ctx stops dispatch; undispatched and interrupted documents are
// reported as cancelled.
func (b *Batch) Run(ctx context.Context, docs []extract.Document) ([]Outcome, Summary) {
	outcomes := make([]Outcome, len(docs))
	for i, d := range docs {
		outcomes[i] = Outcome{Index: i, DocumentID: d.ID, Status: constants.OutcomeCancelled, Reason: "not started"}
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := min(b.workers, max(len(docs), 1))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = b.processOne(ctx, i, docs[i])
			}
			b.logger.Debug("batch.worker.stopped", "worker_id", workerID)
		}(w + 1)
	}

dispatch:
	for i := range docs {
		select {
		case <-ctx.Done():
			b.logger.Warn("batch.cancelled", "dispatched", i, "total", len(docs))
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	s := Summarize(outcomes)
	b.logger.Info("batch.done",
		"total", s.Total,
		"extracted", s.Extracted,
		"trusted", s.Trusted,
		"failed", s.Failed,
		"cancelled", s.Cancelled,
	)
	return outcomes, s
}

func (b *Batch) processOne(ctx context.Context, i int, doc extract.Document) Outcome {
	out := Outcome{Index: i, DocumentID: doc.ID}
	if ctx.Err() != nil {
		out.Status, out.Reason = constants.OutcomeCancelled, ctx.Err().Error()
		return out
	}

	dctx, cancel := ctx, context.CancelFunc(func() {})
	if b.timeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, b.timeout)
	}
	defer cancel()

	rec, err := b.proc.Process(dctx, doc)
	if err == nil {
		out.Status, out.Record = constants.OutcomeExtracted, rec
		return out
	}

	var none *strategy.NoExtractionPossibleError
	switch {
	case errors.As(err, &none):
		out.Status, out.Failures = constants.OutcomeFailed, none.Failures
	case ctx.Err() != nil:
		out.Status, out.Reason = constants.OutcomeCancelled, ctx.Err().Error()
	case errors.Is(err, context.DeadlineExceeded):
		out.Status, out.Reason = constants.OutcomeFailed, "document timeout after "+b.timeout.String()
	default:
		out.Status, out.Reason = constants.OutcomeFailed, err.Error()
	}
	return out
}

// LoadFailure is a document that could not be read (too large, unreadable) and never reached a processor.
type LoadFailure struct {
	DocumentID string
	Reason     string
}

// AppendLoadFailures adds a failed outcome for each load failure after outcomes, indexed after
// them, and returns the recounted summary.
func AppendLoadFailures(outcomes []Outcome, failures []LoadFailure) ([]Outcome, Summary) {
	for _, f := range failures {
		outcomes = append(outcomes, Outcome{
			Index:      len(outcomes),
			DocumentID: f.DocumentID,
			Status:     constants.OutcomeFailed,
			Reason:     "load: " + f.Reason,
		})
	}
	return outcomes, Summarize(outcomes)
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Status {
		case constants.OutcomeExtracted:
			s.Extracted++
			if o.Record != nil && o.Record.Trust.Trusted {
				s.Trusted++
			}
		case constants.OutcomeFailed:
			s.Failed++
		default:
			s.Cancelled++
		}
	}
	return s
}
