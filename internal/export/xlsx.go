package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/trust"
)

// Sheet names of the workbook.
const (
	SheetData    = "Extracted Data"
	SheetMetrics = "Metrics"
)

// Confidence fill bands.
const (
	GreenAt = 0.9
	AmberAt = 0.6

	colorGreen = "C6EFCE"
	colorAmber = "FFEB9C"
	colorRed   = "FFC7CE"
)

// Band returns the fill colour for a confidence value.
func Band(v float64) string {
	switch {
	case v >= GreenAt:
		return colorGreen
	case v >= AmberAt:
		return colorAmber
	default:
		return colorRed
	}
}

type styles struct {
	header int
	bands  map[string]int
}

func newStyles(f *excelize.File) (styles, error) {
	s := styles{bands: map[string]int{}}
	var err error
	s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return s, err
	}
	for _, c := range []string{colorGreen, colorAmber, colorRed} {
		id, err := f.NewStyle(&excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{c}, Pattern: 1},
			NumFmt: 2, // 0.00
		})
		if err != nil {
			return s, err
		}
		s.bands[c] = id
	}
	return s, nil
}

// XLSX builds the workbook: one data row per outcome with colour-coded confidence cells,
// and the lifetime counters on a second sheet.
func XLSX(fieldNames []string, outcomes []pipeline.Outcome, snap trust.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetData); err != nil {
		return nil, err
	}
	st, err := newStyles(f)
	if err != nil {
		return nil, fmt.Errorf("xlsx styles: %w", err)
	}
	if err := writeData(f, st, fieldNames, outcomes); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetMetrics); err != nil {
		return nil, err
	}
	if err := writeMetrics(f, st, snap); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(SheetData)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// isScoreColumn reports whether col holds a 0..1 confidence rendered with a colour band.
func isScoreColumn(col string) bool {
	return strings.HasSuffix(col, pipeline.ConfidenceSuffix) ||
		col == pipeline.ColOverallTrust || col == pipeline.ColCrossValidation
}

func writeData(f *excelize.File, st styles, fieldNames []string, outcomes []pipeline.Outcome) error {
	cols := pipeline.Columns(fieldNames)
	if err := writeRow(f, SheetData, 1, toAny(cols)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(SheetData, "A1", last, st.header); err != nil {
		return err
	}

	for i, o := range outcomes {
		row := i + 2
		for c, v := range o.Flatten(fieldNames) {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			if !isScoreColumn(cols[c]) || v == "" {
				if err := f.SetCellValue(SheetData, cell, v); err != nil {
					return err
				}
				continue
			}
			score, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", row, cols[c], err)
			}
			if err := f.SetCellFloat(SheetData, cell, score, 4, 64); err != nil {
				return err
			}
			if err := f.SetCellStyle(SheetData, cell, cell, st.bands[Band(score)]); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(SheetData, "A", "A", 32)
	if len(cols) > 1 {
		end, _ := excelize.ColumnNumberToName(len(cols))
		_ = f.SetColWidth(SheetData, "B", end, 16)
	}
	return f.SetPanes(SheetData, &excelize.Panes{Freeze: true, XSplit: 1, YSplit: 1, TopLeftCell: "B2", ActivePane: "bottomRight"})
}

func writeMetrics(f *excelize.File, st styles, snap trust.Snapshot) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Documents", snap.Documents},
		{"Extracted", snap.Extracted},
		{"Failed", snap.Failed},
		{"Trusted", snap.Trusted},
		{},
		{"Field", "Correct", "Total", "Accuracy"},
	}
	headers := []int{1, 7}
	bandRows := map[int]float64{}
	for _, name := range snap.FieldNames() {
		c := snap.Fields[name]
		rows = append(rows, []any{name, c.Success, c.Total, c.Rate()})
		bandRows[len(rows)] = c.Rate()
	}
	rows = append(rows, []any{}, []any{"Strategy", "Succeeded", "Runs", "Success Rate"})
	headers = append(headers, len(rows))
	for _, name := range snap.StrategyNames() {
		c := snap.Strategies[name]
		rows = append(rows, []any{name, c.Success, c.Total, c.Rate()})
	}

	for i, r := range rows {
		if err := writeRow(f, SheetMetrics, i+1, r); err != nil {
			return err
		}
	}
	for _, h := range headers {
		a, _ := excelize.CoordinatesToCellName(1, h)
		d, _ := excelize.CoordinatesToCellName(4, h)
		if err := f.SetCellStyle(SheetMetrics, a, d, st.header); err != nil {
			return err
		}
	}
	for row, rate := range bandRows {
		cell, _ := excelize.CoordinatesToCellName(4, row)
		if err := f.SetCellStyle(SheetMetrics, cell, cell, st.bands[Band(rate)]); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetMetrics, "A", "A", 24)
	_ = f.SetColWidth(SheetMetrics, "B", "D", 14)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
