package fields

import (
	"fmt"
	"regexp"
)

// Spec is one schema entry: a named field, its value kind and ordered extraction patterns.
type Spec struct {
	Name     string
	Kind     Kind
	Patterns []*regexp.Regexp // tried in order, first match wins
	Group    int              // capture group holding the value; 0 -> 1
	// Repeat sums every occurrence of a number field (e.g. one tax amount per tax line).
	Repeat bool
	// Cleanup is removed from captured text (e.g. trailing labels glued onto a name).
	Cleanup           *regexp.Regexp
	MissingConfidence float64
	Optional          bool
}

func (s Spec) group() int {
	if s.Group <= 0 {
		return 1
	}
	return s.Group
}

// DerivedSpec is a computed number field: the sum of other number fields. Never pattern-matched.
type DerivedSpec struct {
	Name  string
	SumOf []string
}

// LineItemSpec captures one amount per line item for cross-validation.
type LineItemSpec struct {
	Pattern     *regexp.Regexp
	AmountGroup int
}

// CrossCheckSpec names the declared total that line items are checked against.
type CrossCheckSpec struct {
	TotalField string
}

// Schema is the ordered field schema. Field regexes are configuration, not engine logic.
type Schema struct {
	Fields            []Spec
	Derived           []DerivedSpec
	LineItems         *LineItemSpec
	CrossCheck        *CrossCheckSpec
	CurrencySymbols   []string
	MatchedConfidence float64 // confidence of a clean match; 0 -> 1.0
}

// Names returns field names in output order: extracted fields, then derived ones.
func (s Schema) Names() []string {
	out := make([]string, 0, len(s.Fields)+len(s.Derived))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	for _, d := range s.Derived {
		out = append(out, d.Name)
	}
	return out
}

// Check reports structural problems: duplicate names, bad kinds, capture groups
// beyond what a pattern defines, and derived/cross-check references to unknown fields.
func (s Schema) Check() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	kinds := make(map[string]Kind, len(s.Fields)+len(s.Derived))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field without a name")
		}
		if _, dup := kinds[f.Name]; dup {
			return fmt.Errorf("field %q declared twice", f.Name)
		}
		switch f.Kind {
		case KindText, KindNumber, KindRateList:
		default:
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
		if len(f.Patterns) == 0 {
			return fmt.Errorf("field %q: no patterns", f.Name)
		}
		for i, re := range f.Patterns {
			if re == nil {
				return fmt.Errorf("field %q: pattern %d is nil", f.Name, i)
			}
			if re.NumSubexp() < f.group() {
				return fmt.Errorf("field %q: pattern %d has %d groups, needs group %d", f.Name, i, re.NumSubexp(), f.group())
			}
		}
		if f.MissingConfidence < 0 || f.MissingConfidence > 1 {
			return fmt.Errorf("field %q: missing confidence %v outside [0,1]", f.Name, f.MissingConfidence)
		}
		kinds[f.Name] = f.Kind
	}
	for _, d := range s.Derived {
		if _, dup := kinds[d.Name]; dup || d.Name == "" {
			return fmt.Errorf("derived field %q has an empty or duplicate name", d.Name)
		}
		if len(d.SumOf) == 0 {
			return fmt.Errorf("derived field %q sums nothing", d.Name)
		}
		for _, src := range d.SumOf {
			if kinds[src] != KindNumber {
				return fmt.Errorf("derived field %q: %q is not a number field", d.Name, src)
			}
		}
		kinds[d.Name] = KindNumber
	}
	if s.LineItems != nil {
		if s.LineItems.Pattern == nil {
			return fmt.Errorf("line items: no pattern")
		}
		g := s.LineItems.AmountGroup
		if g <= 0 || s.LineItems.Pattern.NumSubexp() < g {
			return fmt.Errorf("line items: amount group %d not in pattern", g)
		}
	}
	if s.CrossCheck != nil && kinds[s.CrossCheck.TotalField] != KindNumber {
		return fmt.Errorf("cross check: %q is not a number field", s.CrossCheck.TotalField)
	}
	if s.MatchedConfidence < 0 || s.MatchedConfidence > 1 {
		return fmt.Errorf("matched confidence %v outside [0,1]", s.MatchedConfidence)
	}
	return nil
}
