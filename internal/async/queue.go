// Package async runs submitted documents through the engine on a background worker pool.
package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one submitted document.
type Job struct {
	ID          string
	Document    extract.Document
	SubmittedAt time.Time
}

// Output is what a Handler produced for a job.
type Output struct {
	RecordID string
	Record   *pipeline.Record
}

// Handler processes one document.
type Handler func(ctx context.Context, doc extract.Document) (Output, error)

// JobState is a snapshot of a job's progress.
type JobState struct {
	ID          string              `json:"job_id"`
	DocumentID  string              `json:"document_id"`
	Status      constants.JobStatus `json:"status"`
	SubmittedAt time.Time           `json:"submitted_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	RecordID    string              `json:"record_id,omitempty"`
	Record      *pipeline.Record    `json:"record,omitempty"`
	Failures    []strategy.Failure  `json:"failures,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type Queue interface {
	Enqueue(ctx context.Context, doc extract.Document) (string, error)
	Get(id string) (JobState, bool)
	Shutdown(ctx context.Context)
}
