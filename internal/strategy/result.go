package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of one strategy on one document. Never mutated after Run returns.
type Result struct {
	Strategy  string
	Text      string
	Duration  time.Duration
	Succeeded bool
	Err       string
}

// Results holds one Result per registered strategy, in registration order.
type Results []Result

// ByName returns the result of the named strategy.
func (rs Results) ByName(name string) (Result, bool) {
	for _, r := range rs {
		if r.Strategy == name {
			return r, true
		}
	}
	return Result{}, false
}

// Succeeded counts successful results.
func (rs Results) Succeeded() int {
	n := 0
	for _, r := range rs {
		if r.Succeeded {
			n++
		}
	}
	return n
}

// Failures lists the failed strategies with their reasons.
func (rs Results) Failures() []Failure {
	var out []Failure
	for _, r := range rs {
		if !r.Succeeded {
			out = append(out, Failure{Strategy: r.Strategy, Reason: r.Err})
		}
	}
	return out
}

// Failure is a single StrategyFailure: it never aborts the document.
type Failure struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// ErrNoExtraction matches every NoExtractionPossibleError via errors.Is.
var ErrNoExtraction = errors.New("no extraction possible")

// NoExtractionPossibleError is returned when every strategy failed for a document.
type NoExtractionPossibleError struct {
	DocumentID string
	Failures   []Failure
}

func (e *NoExtractionPossibleError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Strategy, f.Reason))
	}
	return fmt.Sprintf("no extraction possible for %q: %s", e.DocumentID, strings.Join(parts, "; "))
}

func (e *NoExtractionPossibleError) Is(target error) bool {
	return target == ErrNoExtraction
}
