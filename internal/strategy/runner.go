package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// Observer receives every strategy outcome. Used for lifetime metrics only.
type Observer interface {
	ObserveStrategy(name string, succeeded bool)
}

// TextFilter post-processes successful strategy text (e.g. whitespace normalization).
type TextFilter func(string) string

// Runner invokes every registered strategy against one document.
type Runner struct {
	strategies  []extract.Strategy
	timeout     time.Duration
	parallelism int
	filter      TextFilter
	observer    Observer
	logger      *slog.Logger
}

type Option func(*Runner)

// WithTimeout bounds each strategy invocation; an overrun is recorded as a failure.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithParallelism caps concurrently running strategies per document (0 = unbounded).
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func WithTextFilter(f TextFilter) Option {
	return func(r *Runner) { r.filter = f }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner keeps strategies in the given order; that order is the selection priority.
func NewRunner(strategies []extract.Strategy, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if len(strategies) == 0 {
		return nil, common.NewConfigError("at least one strategy must be registered", nil)
	}
	seen := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		if _, dup := seen[s.Name()]; dup {
			return nil, common.NewConfigError(fmt.Sprintf("strategy %q registered twice", s.Name()), nil)
		}
		seen[s.Name()] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		strategies: append([]extract.Strategy(nil), strategies...),
		timeout:    2 * time.Minute,
		logger:     logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Names returns strategy names in priority order.
func (r *Runner) Names() []string {
	out := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		out[i] = s.Name()
	}
	return out
}

// Run executes all strategies concurrently and waits for every one of them.
// It returns *NoExtractionPossibleError when none succeeded, or ctx.Err() when the caller cancelled.
func (r *Runner) Run(ctx context.Context, doc extract.Document) (Results, error) {
	log := common.LoggerFrom(ctx, r.logger)
	results := make(Results, len(r.strategies))

	var g errgroup.Group
	if r.parallelism > 0 {
		g.SetLimit(r.parallelism)
	}
	for i, s := range r.strategies {
		g.Go(func() error {
			results[i] = r.runOne(ctx, s, doc)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("strategy.run.cancelled", "error", err)
		return nil, err
	}

	for _, res := range results {
		if r.observer != nil {
			r.observer.ObserveStrategy(res.Strategy, res.Succeeded)
		}
		if res.Succeeded {
			log.Debug("strategy.ok", "strategy", res.Strategy, "chars", len(res.Text), "duration_ms", res.Duration.Milliseconds())
		} else {
			log.Warn("strategy.failed", "strategy", res.Strategy, "reason", res.Err, "duration_ms", res.Duration.Milliseconds())
		}
	}

	if results.Succeeded() == 0 {
		return results, &NoExtractionPossibleError{DocumentID: doc.ID, Failures: results.Failures()}
	}
	return results, nil
}

type extraction struct {
	text string
	err  error
}

// runOne never blocks past the strategy timeout, even if the strategy ignores ctx.
func (r *Runner) runOne(ctx context.Context, s extract.Strategy, doc extract.Document) Result {
	res := Result{Strategy: s.Name()}
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan extraction, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- extraction{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		text, err := s.Extract(sctx, doc)
		done <- extraction{text: text, err: err}
	}()

	var out extraction
	select {
	case out = <-done:
	case <-sctx.Done():
		out = extraction{err: sctx.Err()}
	}
	res.Duration = time.Since(start)

	if out.err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Err = fmt.Sprintf("timeout after %s", r.timeout)
		} else {
			res.Err = out.err.Error()
		}
		return res
	}
	text := out.text
	if r.filter != nil {
		text = r.filter(text)
	}
	if strings.TrimSpace(text) == "" {
		res.Err = "empty result"
		return res
	}
	res.Text = text
	res.Succeeded = true
	return res
}
