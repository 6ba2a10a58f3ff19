package fields

import (
	"fmt"
	"slices"
	"strings"
)

// Parsed is the parser output for one text.
type Parsed struct {
	Fields    []Field   // schema order, derived fields last
	LineItems []float64 // one amount per matched line item
}

// Get returns the named field.
func (p Parsed) Get(name string) (Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Parser applies a Schema to text. It never fails on content: misses and
// malformed numbers degrade to defaults with lowered confidence.
type Parser struct {
	schema  Schema
	numbers NumberNormalizer
	matched float64
}

// NewParser checks the schema once so that Parse can stay error-free.
func NewParser(schema Schema) (*Parser, error) {
	if err := schema.Check(); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	matched := schema.MatchedConfidence
	if matched == 0 {
		matched = 1
	}
	return &Parser{schema: schema, numbers: NewNumberNormalizer(schema.CurrencySymbols), matched: matched}, nil
}

func (p *Parser) Schema() Schema { return p.schema }

// Parse extracts every schema field from text.
func (p *Parser) Parse(text string) Parsed {
	return p.ParseFrom(text, "")
}

// ParseFrom is Parse with every field attributed to source.
func (p *Parser) ParseFrom(text, source string) Parsed {
	out := Parsed{Fields: make([]Field, 0, len(p.schema.Fields)+len(p.schema.Derived))}
	for _, spec := range p.schema.Fields {
		out.Fields = append(out.Fields, p.parseField(spec, text).WithSource(source))
	}
	out.Fields = p.derive(out.Fields)
	out.LineItems = p.lineItems(text)
	return out
}

// Backfill fills fields the primary parse missed from another strategy's text,
// then recomputes derived fields. primary is not modified.
func (p *Parser) Backfill(primary Parsed, text, source string) Parsed {
	secondary := p.ParseFrom(text, source)
	merged := Parsed{
		Fields:    make([]Field, 0, len(primary.Fields)),
		LineItems: append([]float64(nil), primary.LineItems...),
	}
	for _, f := range primary.Fields {
		if f.Derived {
			continue
		}
		if !f.Matched || f.Degraded {
			if alt, ok := secondary.Get(f.Name); ok && alt.Matched && !alt.Degraded {
				f = alt
			}
		}
		merged.Fields = append(merged.Fields, f)
	}
	merged.Fields = p.derive(merged.Fields)
	if len(merged.LineItems) == 0 {
		merged.LineItems = secondary.LineItems
	}
	return merged
}

func (p *Parser) parseField(spec Spec, text string) Field {
	f := Field{Name: spec.Name, Kind: spec.Kind, Value: Value{Kind: spec.Kind}}
	switch {
	case spec.Kind == KindText:
		p.parseText(spec, text, &f)
	case spec.Kind == KindRateList:
		p.parseRepeated(spec, text, &f)
	case spec.Repeat:
		p.parseRepeated(spec, text, &f)
	default:
		p.parseNumber(spec, text, &f)
	}

	if f.Matched && !f.Degraded {
		f.Confidence = p.matched
	} else {
		f.Confidence = spec.MissingConfidence
	}
	if spec.Kind == KindRateList && len(f.Value.List) == 0 {
		f.Value.List = []float64{0}
	}
	return f
}

func (p *Parser) parseText(spec Spec, text string, f *Field) {
	for _, re := range spec.Patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[spec.group()])
		if spec.Cleanup != nil {
			raw = strings.TrimSpace(spec.Cleanup.ReplaceAllString(raw, ""))
		}
		if raw == "" {
			continue
		}
		f.Raw, f.Value.Text, f.Matched = raw, raw, true
		return
	}
}

func (p *Parser) parseNumber(spec Spec, text string, f *Field) {
	for _, re := range spec.Patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[spec.group()])
		if raw == "" {
			continue
		}
		n, ok := p.numbers.Normalize(raw)
		f.Raw, f.Value.Number, f.Matched, f.Degraded = raw, n, true, !ok
		return
	}
}

// parseRepeated collects every occurrence from the first pattern that matches at all.
func (p *Parser) parseRepeated(spec Spec, text string, f *Field) {
	for _, re := range spec.Patterns {
		all := re.FindAllStringSubmatch(text, -1)
		if len(all) == 0 {
			continue
		}
		raws := make([]string, 0, len(all))
		values := make([]float64, 0, len(all))
		for _, m := range all {
			raw := strings.TrimSpace(m[spec.group()])
			n, ok := p.numbers.Normalize(raw)
			if !ok {
				f.Degraded = true
			}
			raws = append(raws, raw)
			values = append(values, n)
		}
		f.Raw = strings.Join(raws, "; ")
		f.Matched = true
		if spec.Kind == KindRateList {
			f.Value.List = values
		} else {
			for _, v := range values {
				f.Value.Number += v
			}
		}
		return
	}
}

// derive appends the derived fields. A derived field's Source lists the distinct sources of
// its matched inputs, comma-separated in SumOf order.
func (p *Parser) derive(fs []Field) []Field {
	for _, d := range p.schema.Derived {
		out := Field{Name: d.Name, Kind: KindNumber, Value: Value{Kind: KindNumber}, Derived: true}
		var conf float64
		var sources []string
		for _, name := range d.SumOf {
			for _, f := range fs {
				if f.Name != name {
					continue
				}
				out.Value.Number += f.Value.Number
				conf += f.Confidence
				out.Matched = out.Matched || f.Matched
				out.Degraded = out.Degraded || f.Degraded
				if f.Matched && f.Source != "" && !slices.Contains(sources, f.Source) {
					sources = append(sources, f.Source)
				}
			}
		}
		out.Confidence = conf / float64(len(d.SumOf))
		out.Source = strings.Join(sources, ",")
		fs = append(fs, out)
	}
	return fs
}

func (p *Parser) lineItems(text string) []float64 {
	spec := p.schema.LineItems
	if spec == nil {
		return nil
	}
	var out []float64
	for _, m := range spec.Pattern.FindAllStringSubmatch(text, -1) {
		if n, ok := p.numbers.Normalize(m[spec.AmountGroup]); ok {
			out = append(out, n)
		}
	}
	return out
}
