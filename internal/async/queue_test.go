package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

func waitFor(t *testing.T, q *ProcessorQueue, id string, want constants.JobStatus) JobState {
	t.Helper()
	var st JobState
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = q.Get(id)
		return ok && st.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestProcessorQueue_DoneAndFailed(t *testing.T) {
	handle := func(_ context.Context, doc extract.Document) (Output, error) {
		if doc.ID == "bad" {
			return Output{}, &strategy.NoExtractionPossibleError{
				DocumentID: doc.ID,
				Failures:   []strategy.Failure{{Strategy: "plaintext", Reason: "empty"}},
			}
		}
		return Output{RecordID: "r1", Record: &pipeline.Record{DocumentID: doc.ID, Strategy: "plaintext"}}, nil
	}
	q := NewProcessorQueue(handle, nil, WithWorkers(2))
	defer q.Shutdown(context.Background())

	okID, err := q.Enqueue(context.Background(), extract.Document{ID: "good"})
	require.NoError(t, err)
	badID, err := q.Enqueue(context.Background(), extract.Document{ID: "bad"})
	require.NoError(t, err)

	st := waitFor(t, q, okID, constants.JobDone)
	assert.Equal(t, "r1", st.RecordID)
	assert.Equal(t, "good", st.Record.DocumentID)
	assert.NotNil(t, st.FinishedAt)

	st = waitFor(t, q, badID, constants.JobFailed)
	require.Len(t, st.Failures, 1)
	assert.Contains(t, st.Error, "no extraction possible")

	_, ok := q.Get("missing")
	assert.False(t, ok)
}

func TestProcessorQueue_Retention(t *testing.T) {
	q := NewProcessorQueue(func(context.Context, extract.Document) (Output, error) {
		return Output{}, errors.New("boom")
	}, nil, WithWorkers(1), WithRetention(1))

	first, err := q.Enqueue(context.Background(), extract.Document{ID: "a"})
	require.NoError(t, err)
	waitFor(t, q, first, constants.JobFailed)

	second, err := q.Enqueue(context.Background(), extract.Document{ID: "b"})
	require.NoError(t, err)
	waitFor(t, q, second, constants.JobFailed)

	_, ok := q.Get(first)
	assert.False(t, ok)
	q.Shutdown(context.Background())
}

func TestProcessorQueue_ShutdownDrainsAndRejects(t *testing.T) {
	release := make(chan struct{})
	q := NewProcessorQueue(func(ctx context.Context, doc extract.Document) (Output, error) {
		<-release
		return Output{Record: &pipeline.Record{DocumentID: doc.ID}}, nil
	}, nil, WithWorkers(1), WithQueueSize(1))

	id, err := q.Enqueue(context.Background(), extract.Document{ID: "a"})
	require.NoError(t, err)

	close(release)
	q.Shutdown(context.Background())
	st, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, constants.JobDone, st.Status)

	_, err = q.Enqueue(context.Background(), extract.Document{ID: "late"})
	assert.ErrorIs(t, err, ErrQueueClosed)
	q.Shutdown(context.Background())
}

func TestProcessorQueue_FullQueueHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	q := NewProcessorQueue(func(context.Context, extract.Document) (Output, error) {
		<-block
		return Output{}, nil
	}, nil, WithWorkers(1), WithQueueSize(1))

	_, err := q.Enqueue(context.Background(), extract.Document{ID: "running"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	_, err = q.Enqueue(context.Background(), extract.Document{ID: "buffered"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Enqueue(ctx, extract.Document{ID: "overflow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
