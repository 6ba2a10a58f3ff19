// Package validate checks the lexical shape of parsed fields and assigns confidence tiers.
package validate

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
)

// Rule is the raw, uncompiled validation configuration of one field.
type Rule struct {
	Pattern  string
	Optional bool
}

// Result is the verdict for one field.
type Result struct {
	Valid  bool
	Tier   constants.Tier
	Status constants.ValidationStatus
}

// Validator never returns errors: a pattern that does not compile is dropped with a warning.
type Validator struct {
	patterns map[string]*regexp.Regexp
	optional map[string]bool
}

func NewValidator(rules map[string]Rule, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{
		patterns: make(map[string]*regexp.Regexp, len(rules)),
		optional: make(map[string]bool, len(rules)),
	}
	for name, r := range rules {
		v.optional[name] = r.Optional
		if strings.TrimSpace(r.Pattern) == "" {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			logger.Warn("validate.pattern.invalid", "field", name, "pattern", r.Pattern, "error", err)
			continue
		}
		v.patterns[name] = re
	}
	return v
}

// HasPattern reports whether a usable pattern is configured for name.
func (v *Validator) HasPattern(name string) bool {
	_, ok := v.patterns[name]
	return ok
}

// Validate matches the value against the field's pattern. Lists are valid only if every element matches.
// Without a pattern a non-empty value is accepted at Medium and an empty one rejected.
func (v *Validator) Validate(name string, value fields.Value) Result {
	if value.Empty() && v.optional[name] {
		return Result{Valid: false, Tier: constants.TierLow, Status: constants.StatusUnknown}
	}

	re, ok := v.patterns[name]
	if !ok {
		if value.Empty() {
			return Result{Valid: false, Tier: constants.TierLow, Status: constants.StatusInvalid}
		}
		return Result{Valid: true, Tier: constants.TierMedium, Status: constants.StatusValid}
	}

	strs := value.Strings()
	if len(strs) == 0 {
		return Result{Valid: false, Tier: constants.TierLow, Status: constants.StatusInvalid}
	}
	for _, s := range strs {
		if !re.MatchString(s) {
			return Result{Valid: false, Tier: constants.TierLow, Status: constants.StatusInvalid}
		}
	}
	return Result{Valid: true, Tier: constants.TierHigh, Status: constants.StatusValid}
}

// ValidateField validates what was extracted. A field no pattern matched is missing, whatever
// its normalized default: UNKNOWN when optional, INVALID otherwise.
func (v *Validator) ValidateField(f fields.Field) Result {
	if !f.Matched {
		if v.optional[f.Name] {
			return Result{Valid: false, Tier: constants.TierLow, Status: constants.StatusUnknown}
		}
		return Result{Valid: false, Tier: constants.TierLow, Status: constants.StatusInvalid}
	}
	return v.Validate(f.Name, f.Value)
}

// Apply validates every field and returns annotated copies in the same order.
func (v *Validator) Apply(in []fields.Field) []fields.Field {
	out := make([]fields.Field, len(in))
	for i, f := range in {
		r := v.ValidateField(f)
		out[i] = f.WithValidation(r.Status, r.Tier)
	}
	return out
}
