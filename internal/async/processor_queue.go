package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

type ProcessorQueue struct {
	handle    Handler
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
	retention int

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	stateMu  sync.RWMutex
	states   map[string]*JobState
	finished []string // finished job ids, oldest first
}

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRetention bounds how many finished jobs stay queryable; the oldest are forgotten first.
func WithRetention(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.retention = n
		}
	}
}

func NewProcessorQueue(handle Handler, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		handle:    handle,
		logger:    logger,
		workers:   4,
		timeout:   3 * time.Minute,
		retention: 1000,
		ch:        make(chan Job, 256),
		states:    make(map[string]*JobState),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("async.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("async.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	q.update(job.ID, func(s *JobState) { s.Status = constants.JobRunning })

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	out, err := q.handle(ctx, job.Document)
	cancel()

	now := time.Now().UTC()
	q.update(job.ID, func(s *JobState) {
		s.FinishedAt = &now
		if err == nil {
			s.Status, s.RecordID, s.Record = constants.JobDone, out.RecordID, out.Record
			return
		}
		s.Status, s.Error = constants.JobFailed, err.Error()
		var none *strategy.NoExtractionPossibleError
		if errors.As(err, &none) {
			s.Failures = none.Failures
		}
	})
	q.retire(job.ID)

	if err != nil {
		q.logger.Error("async.job.failed", "worker_id", workerID, "job_id", job.ID, "document_id", job.Document.ID, "error", err)
	} else {
		q.logger.Info("async.job.done", "worker_id", workerID, "job_id", job.ID, "document_id", job.Document.ID)
	}
}

// Enqueue registers doc and hands it to a worker. A full queue blocks until there is room or ctx ends.
func (q *ProcessorQueue) Enqueue(ctx context.Context, doc extract.Document) (string, error) {
	job := Job{ID: uuid.New().String(), Document: doc, SubmittedAt: time.Now().UTC()}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("async.enqueue.closed", "document_id", doc.ID)
		return "", ErrQueueClosed
	}

	q.stateMu.Lock()
	q.states[job.ID] = &JobState{ID: job.ID, DocumentID: doc.ID, Status: constants.JobQueued, SubmittedAt: job.SubmittedAt}
	q.stateMu.Unlock()

	select {
	case q.ch <- job:
		q.logger.Info("async.job.queued", "job_id", job.ID, "document_id", doc.ID)
		return job.ID, nil
	default:
	}
	q.logger.Warn("async.queue.full", "job_id", job.ID, "document_id", doc.ID)
	select {
	case q.ch <- job:
		return job.ID, nil
	case <-ctx.Done():
		q.stateMu.Lock()
		delete(q.states, job.ID)
		q.stateMu.Unlock()
		return "", ctx.Err()
	}
}

// Get returns a copy of the job's state.
func (q *ProcessorQueue) Get(id string) (JobState, bool) {
	q.stateMu.RLock()
	defer q.stateMu.RUnlock()
	s, ok := q.states[id]
	if !ok {
		return JobState{}, false
	}
	return *s, true
}

func (q *ProcessorQueue) update(id string, fn func(*JobState)) {
	q.stateMu.Lock()
	defer q.stateMu.Unlock()
	if s, ok := q.states[id]; ok {
		fn(s)
	}
}

func (q *ProcessorQueue) retire(id string) {
	q.stateMu.Lock()
	defer q.stateMu.Unlock()
	q.finished = append(q.finished, id)
	for len(q.finished) > q.retention {
		delete(q.states, q.finished[0])
		q.finished = q.finished[1:]
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("async.shutdown.interrupted")
	case <-done:
		q.logger.Info("async.shutdown.drained")
	}
}
