package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

func fixed(name, text string) extract.Strategy {
	return extract.StrategyFunc{Label: name, Fn: func(context.Context, extract.Document) (string, error) {
		return text, nil
	}}
}

func failing(name, reason string) extract.Strategy {
	return extract.StrategyFunc{Label: name, Fn: func(context.Context, extract.Document) (string, error) {
		return "", errors.New(reason)
	}}
}

type recordingObserver struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (o *recordingObserver) ObserveStrategy(name string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[string]bool{}
	}
	o.seen[name] = ok
}

func TestRunner_FailureDoesNotAbortOthers(t *testing.T) {
	obs := &recordingObserver{}
	r, err := NewRunner([]extract.Strategy{
		failing("broken", "boom"),
		fixed("good", "Invoice total 10.00"),
	}, nil, WithObserver(obs))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), extract.Document{ID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "broken", res[0].Strategy)
	assert.False(t, res[0].Succeeded)
	assert.Equal(t, "boom", res[0].Err)

	good, ok := res.ByName("good")
	require.True(t, ok)
	assert.True(t, good.Succeeded)
	assert.Equal(t, "Invoice total 10.00", good.Text)

	assert.Equal(t, map[string]bool{"broken": false, "good": true}, obs.seen)
}

func TestRunner_AllFailIsNoExtractionPossible(t *testing.T) {
	r, err := NewRunner([]extract.Strategy{failing("a", "bad bytes"), failing("b", "no text layer")}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), extract.Document{ID: "empty.pdf", Content: []byte{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoExtraction)

	var nep *NoExtractionPossibleError
	require.True(t, errors.As(err, &nep))
	assert.Equal(t, "empty.pdf", nep.DocumentID)
	assert.Equal(t, []Failure{
		{Strategy: "a", Reason: "bad bytes"},
		{Strategy: "b", Reason: "no text layer"},
	}, nep.Failures)
}

func TestRunner_EmptyTextCountsAsFailure(t *testing.T) {
	r, err := NewRunner([]extract.Strategy{fixed("blank", "  \n\t "), fixed("ok", "text")}, nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), extract.Document{ID: "x"})
	require.NoError(t, err)
	assert.False(t, res[0].Succeeded)
	assert.Equal(t, "empty result", res[0].Err)
}

func TestRunner_TimeoutRecordedAsFailure(t *testing.T) {
	hang := extract.StrategyFunc{Label: "slow", Fn: func(context.Context, extract.Document) (string, error) {
		time.Sleep(2 * time.Second)
		return "too late", nil
	}}
	r, err := NewRunner([]extract.Strategy{hang, fixed("fast", "invoice")}, nil, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	res, err := r.Run(context.Background(), extract.Document{ID: "x"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	slow, _ := res.ByName("slow")
	assert.False(t, slow.Succeeded)
	assert.Contains(t, slow.Err, "timeout")
}

func TestRunner_PanicIsCaptured(t *testing.T) {
	p := extract.StrategyFunc{Label: "panics", Fn: func(context.Context, extract.Document) (string, error) {
		panic("nil map")
	}}
	r, err := NewRunner([]extract.Strategy{p, fixed("ok", "text")}, nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), extract.Document{ID: "x"})
	require.NoError(t, err)
	assert.Contains(t, res[0].Err, "panic")
}

func TestRunner_AllStrategiesComplete(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	mk := func(name string, d time.Duration) extract.Strategy {
		return extract.StrategyFunc{Label: name, Fn: func(context.Context, extract.Document) (string, error) {
			time.Sleep(d)
			mu.Lock()
			calls++
			mu.Unlock()
			return name, nil
		}}
	}
	r, err := NewRunner([]extract.Strategy{mk("a", 0), mk("b", 10*time.Millisecond), mk("c", 30*time.Millisecond)}, nil, WithParallelism(2))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), extract.Document{ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"a", "b", "c"}, []string{res[0].Strategy, res[1].Strategy, res[2].Strategy})
	assert.Equal(t, 3, res.Succeeded())
}

func TestRunner_CancelledContext(t *testing.T) {
	r, err := NewRunner([]extract.Strategy{fixed("a", "text")}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, extract.Document{ID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRunner_RejectsBadRegistry(t *testing.T) {
	_, err := NewRunner(nil, nil)
	assert.True(t, common.IsConfigError(err))

	_, err = NewRunner([]extract.Strategy{fixed("a", "x"), fixed("a", "y")}, nil)
	assert.True(t, common.IsConfigError(err))
}

func TestRunner_TextFilterApplied(t *testing.T) {
	r, err := NewRunner([]extract.Strategy{fixed("a", "  Invoice  ")}, nil, WithTextFilter(func(s string) string { return "filtered" }))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), extract.Document{ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, "filtered", res[0].Text)
	assert.Equal(t, []string{"a"}, r.Names())
}
