// Package rules loads the engine's extraction rules: field schema, scoring, validation and trust policy.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
	"github.com/joseph-ayodele/invoice-trust/internal/scoring"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
	"github.com/joseph-ayodele/invoice-trust/internal/validate"
)

//go:embed default.yaml
var defaultYAML []byte

// EmbeddedSource names the built-in rule set.
const EmbeddedSource = "embedded:default.yaml"

// File mirrors the YAML document.
type File struct {
	Version         int                       `yaml:"version"`
	Strategies      []string                  `yaml:"strategies"`
	Scoring         ScoringRules              `yaml:"scoring"`
	Selection       SelectionRules            `yaml:"selection"`
	CurrencySymbols []string                  `yaml:"currency_symbols"`
	MatchedConf     float64                   `yaml:"matched_confidence"`
	Fields          []FieldRule               `yaml:"fields"`
	Derived         []DerivedRule             `yaml:"derived"`
	LineItems       *LineItemRule             `yaml:"line_items"`
	CrossCheck      *CrossCheckRule           `yaml:"cross_check"`
	Validation      map[string]ValidationRule `yaml:"validation"`
	Tiers           *TierRules                `yaml:"tiers"`
	Trust           TrustRules                `yaml:"trust"`
}

type ScoringRules struct {
	LengthThreshold int      `yaml:"length_threshold"`
	Keywords        []string `yaml:"keywords"`
}

type SelectionRules struct {
	Backfill bool `yaml:"backfill"`
}

type FieldRule struct {
	Name              string      `yaml:"name"`
	Kind              fields.Kind `yaml:"kind"`
	Patterns          []string    `yaml:"patterns"`
	Group             int         `yaml:"group"`
	Repeat            bool        `yaml:"repeat"`
	Cleanup           string      `yaml:"cleanup"`
	MissingConfidence float64     `yaml:"missing_confidence"`
}

type DerivedRule struct {
	Name  string   `yaml:"name"`
	SumOf []string `yaml:"sum_of"`
}

type LineItemRule struct {
	Pattern     string `yaml:"pattern"`
	AmountGroup int    `yaml:"amount_group"`
}

type CrossCheckRule struct {
	TotalField string `yaml:"total_field"`
}

type ValidationRule struct {
	Pattern  string `yaml:"pattern"`
	Optional bool   `yaml:"optional"`
}

type TierRules struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
	Low    float64 `yaml:"low"`
}

type TrustRules struct {
	Threshold      float64            `yaml:"threshold"`
	CrossThreshold float64            `yaml:"cross_threshold"`
	CrossWeight    float64            `yaml:"cross_weight"`
	FieldWeights   map[string]float64 `yaml:"field_weights"`
}

// Rules is the compiled, ready-to-use rule set.
type Rules struct {
	Source     string
	Raw        []byte
	Strategies []string
	Schema     fields.Schema
	Scoring    scoring.Config
	Validation map[string]validate.Rule
	Trust      trust.Config
	Backfill   bool
}

// DefaultYAML returns a copy of the embedded rule file.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// Default compiles the embedded rule set.
func Default() (*Rules, error) {
	return Parse(defaultYAML, EmbeddedSource)
}

// Load reads and compiles a rule file; an empty path selects the embedded rules.
// Every failure is a configuration error.
func Load(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("read rules %s", path), err)
	}
	return Parse(data, path)
}

// Parse validates data against the rules JSON Schema, then compiles it.
func Parse(data []byte, source string) (*Rules, error) {
	if err := validateDocument(data); err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("rules %s", source), err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("decode rules %s", source), err)
	}
	if err := f.check(); err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("rules %s", source), err)
	}
	r, err := f.compile()
	if err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("rules %s", source), err)
	}
	r.Source = source
	r.Raw = append([]byte(nil), data...)
	return r, nil
}

// check runs the semantic checks the JSON Schema cannot express.
func (f *File) check() error {
	v := common.NewValidator()
	seen := make(map[string]bool, len(f.Strategies))
	for i, s := range f.Strategies {
		key := fmt.Sprintf("strategies[%d]", i)
		v.Field(key, s, common.OneOf(constants.KnownStrategies...))
		if seen[s] {
			v.Field(key, s, common.Fail("listed twice"))
		}
		seen[s] = true
	}
	for i, fr := range f.Fields {
		for j, p := range fr.Patterns {
			v.Field(fmt.Sprintf("fields[%d].patterns[%d]", i, j), p, common.Regexp)
		}
		if fr.Cleanup != "" {
			v.Field(fmt.Sprintf("fields[%d].cleanup", i), fr.Cleanup, common.Regexp)
		}
	}
	if f.LineItems != nil {
		v.Field("line_items.pattern", f.LineItems.Pattern, common.Regexp)
	}
	known := f.fieldNames()
	for name, vr := range f.Validation {
		if !slices.Contains(known, name) {
			v.Field("validation."+name, name, common.Fail("no such field"))
		}
		v.Field("validation."+name+".pattern", vr.Pattern, common.Regexp)
	}
	for name := range f.Trust.FieldWeights {
		if !slices.Contains(known, name) {
			v.Field("trust.field_weights."+name, name, common.Fail("no such field"))
		}
	}
	return v.Error()
}

func (f *File) fieldNames() []string {
	out := make([]string, 0, len(f.Fields)+len(f.Derived))
	for _, fr := range f.Fields {
		out = append(out, fr.Name)
	}
	for _, d := range f.Derived {
		out = append(out, d.Name)
	}
	return out
}

func (f *File) compile() (*Rules, error) {
	schema := fields.Schema{
		CurrencySymbols:   f.CurrencySymbols,
		MatchedConfidence: f.MatchedConf,
	}
	for _, fr := range f.Fields {
		spec := fields.Spec{
			Name:              fr.Name,
			Kind:              fr.Kind,
			Group:             fr.Group,
			Repeat:            fr.Repeat,
			MissingConfidence: fr.MissingConfidence,
			Optional:          f.Validation[fr.Name].Optional,
		}
		for _, p := range fr.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fr.Name, err)
			}
			spec.Patterns = append(spec.Patterns, re)
		}
		if fr.Cleanup != "" {
			re, err := regexp.Compile(fr.Cleanup)
			if err != nil {
				return nil, fmt.Errorf("field %s cleanup: %w", fr.Name, err)
			}
			spec.Cleanup = re
		}
		schema.Fields = append(schema.Fields, spec)
	}
	for _, d := range f.Derived {
		schema.Derived = append(schema.Derived, fields.DerivedSpec{Name: d.Name, SumOf: d.SumOf})
	}
	if f.LineItems != nil {
		re, err := regexp.Compile(f.LineItems.Pattern)
		if err != nil {
			return nil, fmt.Errorf("line items: %w", err)
		}
		schema.LineItems = &fields.LineItemSpec{Pattern: re, AmountGroup: f.LineItems.AmountGroup}
	}
	if f.CrossCheck != nil {
		schema.CrossCheck = &fields.CrossCheckSpec{TotalField: f.CrossCheck.TotalField}
	}
	if err := schema.Check(); err != nil {
		return nil, err
	}

	validation := make(map[string]validate.Rule, len(f.Validation))
	for name, vr := range f.Validation {
		validation[name] = validate.Rule{Pattern: vr.Pattern, Optional: vr.Optional}
	}

	tc := trust.Config{
		TrustThreshold: f.Trust.Threshold,
		CrossThreshold: f.Trust.CrossThreshold,
		CrossWeight:    f.Trust.CrossWeight,
		FieldWeights:   f.Trust.FieldWeights,
	}
	if f.Tiers != nil {
		tc.TierWeights = map[constants.Tier]float64{
			constants.TierHigh:   f.Tiers.High,
			constants.TierMedium: f.Tiers.Medium,
			constants.TierLow:    f.Tiers.Low,
		}
	}
	if _, err := trust.NewAggregator(tc); err != nil {
		return nil, err
	}

	strategies := f.Strategies
	if len(strategies) == 0 {
		strategies = append([]string(nil), constants.KnownStrategies...)
	}

	return &Rules{
		Strategies: strategies,
		Schema:     schema,
		Scoring:    scoring.Config{LengthThreshold: f.Scoring.LengthThreshold, Keywords: f.Scoring.Keywords},
		Validation: validation,
		Trust:      tc,
		Backfill:   f.Selection.Backfill,
	}, nil
}
