// Package export writes batch outcomes as flat CSV rows or an XLSX workbook.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// FormatFor picks the output format from a file extension.
func FormatFor(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case FormatCSV, FormatXLSX:
		return ext, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want .csv or .xlsx)", ext)
	}
}

// WriteFile writes outcomes to path in the format its extension names.
func WriteFile(path string, fieldNames []string, outcomes []pipeline.Outcome, snap trust.Snapshot) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	var data []byte
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, fieldNames, outcomes); err != nil {
			return err
		}
		data = buf.Bytes()
	case FormatXLSX:
		if data, err = XLSX(fieldNames, outcomes, snap); err != nil {
			return err
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
