// Package pipeline turns one document into an ExtractionRecord and runs batches of documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
	"github.com/joseph-ayodele/invoice-trust/internal/scoring"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
	"github.com/joseph-ayodele/invoice-trust/internal/validate"
)

// Engine bundles the stages a Processor drives, in order.
type Engine struct {
	Runner     *strategy.Runner
	Scorer     *scoring.Scorer
	Parser     *fields.Parser
	Validator  *validate.Validator
	Aggregator *trust.Aggregator
}

// Processor coordinates run -> score -> select -> parse -> validate -> aggregate.
type Processor struct {
	engine   Engine
	metrics  *trust.Metrics
	backfill bool
	logger   *slog.Logger
}

type ProcessorOption func(*Processor)

// WithMetrics records every document outcome in m.
func WithMetrics(m *trust.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithBackfill fills fields missed by the winning strategy from runner-up strategies in rank order.
func WithBackfill(on bool) ProcessorOption {
	return func(p *Processor) { p.backfill = on }
}

func NewProcessor(logger *slog.Logger, engine Engine, opts ...ProcessorOption) (*Processor, error) {
	if engine.Runner == nil || engine.Scorer == nil || engine.Parser == nil || engine.Validator == nil || engine.Aggregator == nil {
		return nil, common.NewConfigError("processor needs runner, scorer, parser, validator and aggregator", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{engine: engine, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Metrics returns the lifetime counters, or nil when none were configured.
func (p *Processor) Metrics() *trust.Metrics { return p.metrics }

// Strategies returns the registered strategy names in priority order.
func (p *Processor) Strategies() []string { return p.engine.Runner.Names() }

// FieldNames returns the output field order.
func (p *Processor) FieldNames() []string { return p.engine.Parser.Schema().Names() }

// Process produces the ExtractionRecord of one document. It fails only with
// *strategy.NoExtractionPossibleError or the caller's context error; a
// low-confidence document still yields a record.
func (p *Processor) Process(ctx context.Context, doc extract.Document) (*Record, error) {
	ctx = common.WithDocumentID(ctx, doc.ID)
	log := common.LoggerFrom(ctx, p.logger)

	results, err := p.engine.Runner.Run(ctx, doc)
	if err != nil {
		var none *strategy.NoExtractionPossibleError
		if errors.As(err, &none) && p.metrics != nil {
			p.metrics.ObserveFailure()
		}
		log.Warn("pipeline.document.failed", "error", err)
		return nil, err
	}

	scored := p.engine.Scorer.ScoreAll(results)
	winner, err := scoring.Select(scored)
	if err != nil {
		return nil, fmt.Errorf("select strategy: %w", err)
	}
	best, _ := results.ByName(winner)

	parsed := p.engine.Parser.ParseFrom(best.Text, winner)
	if p.backfill {
		for _, s := range scoring.Rank(scored) {
			if s.Strategy == winner {
				continue
			}
			if r, ok := results.ByName(s.Strategy); ok && r.Succeeded {
				parsed = p.engine.Parser.Backfill(parsed, r.Text, r.Strategy)
			}
		}
	}

	validated := p.engine.Validator.Apply(parsed.Fields)
	report := p.engine.Aggregator.Aggregate(validated, p.crossCheck(validated, parsed.LineItems))

	rec := &Record{
		DocumentID: doc.ID,
		Strategy:   winner,
		Scores:     scored,
		Fields:     validated,
		LineItems:  parsed.LineItems,
		Trust:      report,
	}
	if p.metrics != nil {
		p.metrics.ObserveRecord(validated, report)
	}
	log.Info("pipeline.document.ok",
		"strategy", winner,
		"overall", report.Overall,
		"trusted", report.Trusted,
		"invalid_fields", len(report.Invalid),
	)
	return rec, nil
}

func (p *Processor) crossCheck(fs []fields.Field, items []float64) trust.CrossCheck {
	spec := p.engine.Parser.Schema().CrossCheck
	if spec == nil {
		return trust.CrossCheck{}
	}
	for _, f := range fs {
		if f.Name == spec.TotalField {
			return trust.CrossCheck{Total: f.Value.Number, Items: items}
		}
	}
	return trust.CrossCheck{}
}
