package fields

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/constants"
)

// Kind is the value type of a schema field.
type Kind string

const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindRateList Kind = "rate_list"
)

// Value is a typed, normalized field value. Exactly one of Text/Number/List is meaningful, per Kind.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
	List   []float64
}

// Empty reports whether the value carries nothing (empty text, zero number, all-zero list).
func (v Value) Empty() bool {
	switch v.Kind {
	case KindNumber:
		return v.Number == 0
	case KindRateList:
		for _, r := range v.List {
			if r != 0 {
				return false
			}
		}
		return true
	default:
		return strings.TrimSpace(v.Text) == ""
	}
}

// Strings renders the value as the strings the validator matches patterns against.
func (v Value) Strings() []string {
	switch v.Kind {
	case KindNumber:
		return []string{FormatNumber(v.Number)}
	case KindRateList:
		out := make([]string, len(v.List))
		for i, r := range v.List {
			out[i] = FormatNumber(r)
		}
		return out
	default:
		return []string{v.Text}
	}
}

// String renders the value for flat tabular output.
func (v Value) String() string {
	return strings.Join(v.Strings(), ", ")
}

// Any returns the value as a plain Go type (string, float64, []float64).
func (v Value) Any() any {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindRateList:
		return append([]float64(nil), v.List...)
	default:
		return v.Text
	}
}

// MarshalJSON encodes the plain value, e.g. "INV-1", 1125.52 or [6,9].
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// FormatNumber prints at most two decimals and drops trailing zeros ("1125.52", "6", "0").
func FormatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Field is one ExtractedField. Treat it as immutable: stages derive copies with With* methods.
// Raw is the matched text before normalization ("" when missing or derived), Degraded marks a
// failed numeric normalization and Source names the strategy whose text supplied the value.
type Field struct {
	Name       string                     `json:"name"`
	Kind       Kind                       `json:"kind"`
	Raw        string                     `json:"raw_value"`
	Value      Value                      `json:"normalized_value"`
	Confidence float64                    `json:"extraction_confidence"`
	Matched    bool                       `json:"matched"`
	Degraded   bool                       `json:"degraded,omitempty"`
	Derived    bool                       `json:"derived,omitempty"`
	Source     string                     `json:"source,omitempty"`
	Status     constants.ValidationStatus `json:"validation_status,omitempty"`
	Tier       constants.Tier             `json:"tier,omitempty"`
}

// WithValidation returns a copy of f carrying the validator's verdict.
func (f Field) WithValidation(status constants.ValidationStatus, tier constants.Tier) Field {
	f.Status = status
	f.Tier = tier
	return f
}

// WithSource returns a copy of f attributed to the given strategy.
func (f Field) WithSource(source string) Field {
	f.Source = source
	return f
}
