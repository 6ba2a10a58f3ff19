package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
)

// WriteCSV writes a header row and one row per outcome, in outcome order.
func WriteCSV(w io.Writer, fieldNames []string, outcomes []pipeline.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(pipeline.Columns(fieldNames)); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	for _, o := range outcomes {
		if err := cw.Write(o.Flatten(fieldNames)); err != nil {
			return fmt.Errorf("csv row %s: %w", o.DocumentID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
