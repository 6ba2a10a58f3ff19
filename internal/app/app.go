// Package app assembles the extraction engine from service configuration and a rule set.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/azurecv"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/convert"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
	"github.com/joseph-ayodele/invoice-trust/internal/llm/gemini"
	"github.com/joseph-ayodele/invoice-trust/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-trust/internal/ocr"
	"github.com/joseph-ayodele/invoice-trust/internal/pdftext"
	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/rules"
	"github.com/joseph-ayodele/invoice-trust/internal/scoring"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
	"github.com/joseph-ayodele/invoice-trust/internal/validate"
)

// Engine is a ready processor plus what was needed to build it.
type Engine struct {
	Rules     *rules.Rules
	Processor *pipeline.Processor
	Metrics   *trust.Metrics
	// Skipped lists strategies named by the rules whose backend is not configured.
	Skipped []string

	closers []func() error
}

// Close releases backend clients.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Option customises Build.
type Option func(*options)

type options struct {
	runner ocr.Runner
	extra  map[string]extract.Strategy
}

// WithOCRRunner replaces the exec runner used by poppler and tesseract.
func WithOCRRunner(r ocr.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithStrategy registers s under its name, taking precedence over the built-in backend.
func WithStrategy(s extract.Strategy) Option {
	return func(o *options) { o.extra[s.Name()] = s }
}

// Build wires strategies in the rules' priority order and the stages after them.
// A strategy whose backend has no credentials is skipped with a warning; an unknown
// name or an engine with no strategy left is a configuration error.
func Build(ctx context.Context, cfg *common.Config, rs *rules.Rules, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{extra: map[string]extract.Strategy{}}
	for _, fn := range opts {
		fn(&o)
	}

	eng := &Engine{Rules: rs, Metrics: trust.NewMetrics()}
	strategies, err := eng.strategies(ctx, cfg, rs.Strategies, o, logger)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}

	runner, err := strategy.NewRunner(strategies, logger,
		strategy.WithTimeout(cfg.Engine.StrategyTimeout),
		strategy.WithParallelism(cfg.Engine.Parallelism),
		strategy.WithTextFilter(ocr.Normalize),
		strategy.WithObserver(eng.Metrics),
	)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}
	parser, err := fields.NewParser(rs.Schema)
	if err != nil {
		_ = eng.Close()
		return nil, common.NewConfigError("field schema", err)
	}
	agg, err := trust.NewAggregator(rs.Trust)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}

	eng.Processor, err = pipeline.NewProcessor(logger, pipeline.Engine{
		Runner:     runner,
		Scorer:     scoring.NewScorer(rs.Scoring),
		Parser:     parser,
		Validator:  validate.NewValidator(rs.Validation, logger),
		Aggregator: agg,
	}, pipeline.WithMetrics(eng.Metrics), pipeline.WithBackfill(rs.Backfill))
	if err != nil {
		_ = eng.Close()
		return nil, err
	}

	logger.Info("app.engine.ready",
		"rules", rs.Source,
		"strategies", runner.Names(),
		"skipped", eng.Skipped,
		"fields", len(rs.Schema.Fields),
		"backfill", rs.Backfill,
	)
	return eng, nil
}

func (e *Engine) strategies(ctx context.Context, cfg *common.Config, names []string, o options, logger *slog.Logger) ([]extract.Strategy, error) {
	oc := OCRConfig(cfg.OCR)
	var out []extract.Strategy
	for _, name := range names {
		if s, ok := o.extra[name]; ok {
			out = append(out, s)
			continue
		}
		s, err := e.strategy(ctx, cfg, name, oc, o.runner, logger)
		switch {
		case common.IsConfigError(err) && isRemote(name):
			logger.Warn("app.strategy.skipped", "strategy", name, "reason", err.Error())
			e.Skipped = append(e.Skipped, name)
		case err != nil:
			return nil, err
		default:
			out = append(out, s)
		}
	}
	return out, nil
}

func (e *Engine) strategy(ctx context.Context, cfg *common.Config, name string, oc ocr.Config, runner ocr.Runner, logger *slog.Logger) (extract.Strategy, error) {
	renderer := func() extract.PageRenderer { return ocr.NewRenderer(oc, runner, logger) }

	switch name {
	case constants.StrategyPlainText:
		return extract.PlainText{}, nil
	case constants.StrategyPDFToText:
		return ocr.NewPDFText(oc, runner, logger), nil
	case constants.StrategyPDFCPU:
		return pdftext.New(cfg.OCR.MaxPages, logger), nil
	case constants.StrategyDocconv:
		return convert.NewDocconv(false, logger), nil
	case constants.StrategyHTML:
		return convert.NewHTML(logger), nil
	case constants.StrategyTesseract:
		return extract.NewRasterStrategy(name, renderer(), ocr.NewTesseract(oc, runner, logger), logger), nil
	case constants.StrategyAzure:
		r, err := azurecv.NewReader(cfg.Azure.Endpoint, cfg.Azure.Key, cfg.Azure.Language, logger)
		if err != nil {
			return nil, err
		}
		return extract.NewRasterStrategy(name, renderer(), r, logger), nil
	case constants.StrategyOpenAI:
		r, err := openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.OpenAI.Timeout,
			MaxRetries:  cfg.OpenAI.MaxRetries,
		}, logger)
		if err != nil {
			return nil, err
		}
		return extract.NewRasterStrategy(name, renderer(), r, logger), nil
	case constants.StrategyGemini:
		r, err := gemini.NewReader(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, r.Close)
		return extract.NewRasterStrategy(name, renderer(), r, logger), nil
	}
	return nil, common.NewConfigError(fmt.Sprintf("unknown strategy %q", name), nil)
}

// isRemote reports whether name needs credentials for an external service.
func isRemote(name string) bool {
	switch name {
	case constants.StrategyAzure, constants.StrategyOpenAI, constants.StrategyGemini:
		return true
	}
	return false
}

// OCRConfig maps the service OCR section onto the ocr package config.
func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Pdftotext:           c.Pdftotext,
		Pdftoppm:            c.Pdftoppm,
		Tesseract:           c.Tesseract,
		TesseractLang:       c.TesseractLang,
		TessdataDir:         c.TessdataDir,
		DPI:                 c.DPI,
		MaxPages:            c.MaxPages,
		HeicConverter:       c.HeicConverter,
		EnableTSVConfidence: c.TSVConfidence,
		Preprocess:          c.Preprocess,
	}
}
