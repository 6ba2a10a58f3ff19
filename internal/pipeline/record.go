package pipeline

import (
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/fields"
	"github.com/joseph-ayodele/invoice-trust/internal/scoring"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
)

// Record is the ExtractionRecord of one document.
type Record struct {
	DocumentID string           `json:"document_id"`
	Strategy   string           `json:"chosen_strategy"`
	Scores     []scoring.Scored `json:"strategy_scores"`
	Fields     []fields.Field   `json:"fields"`
	LineItems  []float64        `json:"line_items,omitempty"`
	Trust      trust.Report     `json:"trust"`
}

// Field returns the named field.
func (r *Record) Field(name string) (fields.Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return fields.Field{}, false
}

// Outcome is the terminal state of one document in a batch: a record, or the reason there is none.
type Outcome struct {
	Index      int                     `json:"index"`
	DocumentID string                  `json:"document_id"`
	Status     constants.OutcomeStatus `json:"status"`
	Record     *Record                 `json:"record,omitempty"`
	Failures   []strategy.Failure      `json:"failures,omitempty"`
	Reason     string                  `json:"reason,omitempty"`
}

// Fixed columns around the per-field pairs of a flat row.
const (
	ColDocumentID      = "document_id"
	ColStrategy        = "strategy"
	ColCrossValidation = "cross_validation"
	ColOverallTrust    = "overall_trust"
	ColTrusted         = "trusted"
	ColStatus          = "status"
	ColError           = "error"
)

// ConfidenceSuffix is appended to a field name to form its confidence column.
const ConfidenceSuffix = "_confidence"

// Columns returns the flat layout: document and strategy, a value and confidence
// column per field, then the trust summary and status.
func Columns(fieldNames []string) []string {
	cols := make([]string, 0, 2*len(fieldNames)+7)
	cols = append(cols, ColDocumentID, ColStrategy)
	for _, n := range fieldNames {
		cols = append(cols, n, n+ConfidenceSuffix)
	}
	return append(cols, ColCrossValidation, ColOverallTrust, ColTrusted, ColStatus, ColError)
}

// Flatten renders o as one row aligned with Columns(fieldNames). Confidence
// columns carry the per-field trust confidence.
func (o Outcome) Flatten(fieldNames []string) []string {
	row := make([]string, 0, 2*len(fieldNames)+7)
	row = append(row, o.DocumentID)
	if o.Record == nil {
		row = append(row, "")
		for range fieldNames {
			row = append(row, "", "")
		}
		return append(row, "", "", "", string(o.Status), o.reason())
	}

	rec := o.Record
	row = append(row, rec.Strategy)
	for _, n := range fieldNames {
		f, ok := rec.Field(n)
		if !ok {
			row = append(row, "", "")
			continue
		}
		row = append(row, f.Value.String(), formatScore(rec.Trust.PerField[n]))
	}
	cross := ""
	if rec.Trust.CrossValidation != nil {
		cross = formatScore(*rec.Trust.CrossValidation)
	}
	return append(row, cross, formatScore(rec.Trust.Overall), strconv.FormatBool(rec.Trust.Trusted), string(o.Status), "")
}

// Flat returns the row as a column -> value map.
func (o Outcome) Flat(fieldNames []string) map[string]string {
	cols := Columns(fieldNames)
	row := o.Flatten(fieldNames)
	out := make(map[string]string, len(cols))
	for i, c := range cols {
		out[c] = row[i]
	}
	return out
}

func (o Outcome) reason() string {
	if o.Reason != "" {
		return o.Reason
	}
	parts := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		parts = append(parts, f.Strategy+": "+f.Reason)
	}
	return strings.Join(parts, "; ")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
