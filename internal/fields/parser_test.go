package fields

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInvoice = `Tax Invoice
Invoice #: INV-124
Invoice Date: 12 Mar 2024 Due Date: 27 Mar 2024 Customer Details: Asha Traders Place of Supply: 29-KARNATAKA
GSTIN 29ABCDE1234F1Z5
Item: Widget Quantity: 2 Price: 500.00
Item: Gadget Quantity: 1 Price: 615.00
Taxable Amount ₹1,125.52
CGST 6% ₹33.77
SGST 6% ₹33.77
CGST 9% ₹50.65
SGST 9% ₹50.65
Total Discount - ₹180.00
Total ₹1,115.00`

func re(p string) *regexp.Regexp { return regexp.MustCompile(p) }

func gstSchema() Schema {
	tax := func(prefix string) []Spec {
		p := re(prefix + `\s*(\d+\.?\d*)%?\s*₹([0-9,]+\.\d{2})`)
		return []Spec{
			{Name: strings.ToLower(prefix) + "_rates", Kind: KindRateList, Patterns: []*regexp.Regexp{p}, Group: 1, MissingConfidence: 0.9},
			{Name: strings.ToLower(prefix) + "_amount", Kind: KindNumber, Patterns: []*regexp.Regexp{p}, Group: 2, Repeat: true, MissingConfidence: 0.9},
		}
	}
	specs := []Spec{
		{Name: "invoice_number", Kind: KindText, Patterns: []*regexp.Regexp{re(`Invoice #:\s*([A-Za-z0-9\-]+)`)}, MissingConfidence: 0.5},
		{Name: "invoice_date", Kind: KindText, Patterns: []*regexp.Regexp{re(`Invoice Date:\s*([0-9A-Za-z\s]+)\s*Due Date:`)}, MissingConfidence: 0.6},
		{Name: "customer_details", Kind: KindText, Patterns: []*regexp.Regexp{re(`Customer Details:\s*([A-Za-z ]+)`)},
			Cleanup: re(`\b(Place of Supply|Ph)\b.*`), MissingConfidence: 0.5},
		{Name: "taxable_value", Kind: KindNumber, Patterns: []*regexp.Regexp{re(`Taxable Amount\s*₹([0-9,]+\.\d{2})`)}, MissingConfidence: 0.6},
	}
	specs = append(specs, tax("CGST")...)
	specs = append(specs, tax("SGST")...)
	specs = append(specs, tax("IGST")...)
	specs = append(specs, Spec{Name: "final_amount", Kind: KindNumber, Patterns: []*regexp.Regexp{re(`Total\s*₹([0-9,]+\.\d{2})`)}, MissingConfidence: 0.5})

	return Schema{
		Fields:     specs,
		Derived:    []DerivedSpec{{Name: "tax_amount", SumOf: []string{"cgst_amount", "sgst_amount", "igst_amount"}}},
		LineItems:  &LineItemSpec{Pattern: re(`Item:\s*(\w+)\s*Quantity:\s*(\d+)\s*Price:\s*₹?([0-9,]+\.?\d*)`), AmountGroup: 3},
		CrossCheck: &CrossCheckSpec{TotalField: "final_amount"},
	}
}

func mustParser(t *testing.T, s Schema) *Parser {
	t.Helper()
	p, err := NewParser(s)
	require.NoError(t, err)
	return p
}

func field(t *testing.T, p Parsed, name string) Field {
	t.Helper()
	f, ok := p.Get(name)
	require.True(t, ok, "field %s missing", name)
	return f
}

func TestParse_SampleInvoice(t *testing.T) {
	p := mustParser(t, gstSchema())
	out := p.ParseFrom(sampleInvoice, "pdftotext")

	assert.Equal(t, "INV-124", field(t, out, "invoice_number").Value.Text)
	assert.Equal(t, "12 Mar 2024", field(t, out, "invoice_date").Value.Text)
	assert.Equal(t, "Asha Traders", field(t, out, "customer_details").Value.Text)
	assert.InDelta(t, 1125.52, field(t, out, "taxable_value").Value.Number, 1e-9)
	assert.InDelta(t, 1115.00, field(t, out, "final_amount").Value.Number, 1e-9)
	assert.Equal(t, []float64{6, 9}, field(t, out, "cgst_rates").Value.List)
	assert.Equal(t, []float64{6, 9}, field(t, out, "sgst_rates").Value.List)

	cgst := field(t, out, "cgst_amount").Value.Number
	sgst := field(t, out, "sgst_amount").Value.Number
	igst := field(t, out, "igst_amount").Value.Number
	assert.InDelta(t, 33.77+50.65, cgst, 1e-9)
	assert.InDelta(t, 33.77+50.65, sgst, 1e-9)
	assert.Equal(t, 0.0, igst)

	tax := field(t, out, "tax_amount")
	assert.True(t, tax.Derived)
	assert.InDelta(t, cgst+sgst+igst, tax.Value.Number, 1e-9)
	assert.Empty(t, tax.Raw)

	assert.Equal(t, []float64{500, 615}, out.LineItems)
	assert.Equal(t, "pdftotext", field(t, out, "invoice_number").Source)
	assert.Equal(t, "pdftotext", tax.Source)
}

func TestParse_Confidences(t *testing.T) {
	p := mustParser(t, gstSchema())
	out := p.Parse(sampleInvoice)

	assert.Equal(t, 1.0, field(t, out, "invoice_number").Confidence)
	igst := field(t, out, "igst_amount")
	assert.False(t, igst.Matched)
	assert.Equal(t, 0.9, igst.Confidence)
	assert.InDelta(t, (1.0+1.0+0.9)/3, field(t, out, "tax_amount").Confidence, 1e-9)

	for _, f := range out.Fields {
		assert.GreaterOrEqual(t, f.Confidence, 0.0, f.Name)
		assert.LessOrEqual(t, f.Confidence, 1.0, f.Name)
	}
}

func TestParse_MissingDefaults(t *testing.T) {
	p := mustParser(t, gstSchema())
	out := p.Parse("nothing useful here")

	inv := field(t, out, "invoice_number")
	assert.Equal(t, "", inv.Value.Text)
	assert.False(t, inv.Matched)
	assert.Equal(t, 0.5, inv.Confidence)

	assert.Equal(t, 0.0, field(t, out, "final_amount").Value.Number)
	assert.Equal(t, []float64{0}, field(t, out, "cgst_rates").Value.List)
	assert.Equal(t, []float64{0}, field(t, out, "sgst_rates").Value.List)
	assert.Equal(t, []float64{0}, field(t, out, "igst_rates").Value.List)
	assert.Empty(t, out.LineItems)
}

func TestParse_MalformedNumberDegrades(t *testing.T) {
	s := Schema{Fields: []Spec{{Name: "total", Kind: KindNumber, Patterns: []*regexp.Regexp{re(`Total:\s*(\S+)`)}, MissingConfidence: 0.4}}}
	p := mustParser(t, s)

	f := field(t, p.Parse("Total: 12.3.4"), "total")
	assert.Equal(t, 0.0, f.Value.Number)
	assert.True(t, f.Matched)
	assert.True(t, f.Degraded)
	assert.Equal(t, "12.3.4", f.Raw)
	assert.Equal(t, 0.4, f.Confidence)
}

func TestParse_OrderedPatterns(t *testing.T) {
	s := Schema{Fields: []Spec{{
		Name: "invoice_number", Kind: KindText,
		Patterns: []*regexp.Regexp{re(`Invoice #:\s*(\S+)`), re(`Invoice No\.?\s*(\S+)`)},
	}}}
	p := mustParser(t, s)

	assert.Equal(t, "B-7", field(t, p.Parse("Invoice No. B-7"), "invoice_number").Value.Text)
	assert.Equal(t, "A-1", field(t, p.Parse("Invoice No. B-7\nInvoice #: A-1"), "invoice_number").Value.Text)
}

func TestParse_Deterministic(t *testing.T) {
	p := mustParser(t, gstSchema())
	assert.Equal(t, p.Parse(sampleInvoice), p.Parse(sampleInvoice))
}

func TestBackfill(t *testing.T) {
	p := mustParser(t, gstSchema())
	primary := p.ParseFrom("Invoice #: INV-9\nCGST 6% ₹10.00", "pdfcpu")
	merged := p.Backfill(primary, sampleInvoice, "tesseract")

	inv := field(t, merged, "invoice_number")
	assert.Equal(t, "INV-9", inv.Value.Text)
	assert.Equal(t, "pdfcpu", inv.Source)

	total := field(t, merged, "final_amount")
	assert.InDelta(t, 1115.0, total.Value.Number, 1e-9)
	assert.Equal(t, "tesseract", total.Source)

	assert.InDelta(t, 10.0, field(t, merged, "cgst_amount").Value.Number, 1e-9)
	tax := field(t, merged, "tax_amount")
	assert.InDelta(t, 10.0+84.42, tax.Value.Number, 1e-9)
	assert.Equal(t, "pdfcpu,tesseract", tax.Source)

	onlyPrimary := p.Backfill(primary, "Invoice #: INV-9", "tesseract")
	assert.Equal(t, "pdfcpu", field(t, onlyPrimary, "tax_amount").Source)
	assert.Equal(t, []float64{500, 615}, merged.LineItems)

	_, stillThere := primary.Get("final_amount")
	assert.True(t, stillThere)
	assert.False(t, field(t, primary, "final_amount").Matched)
}

func TestSchemaCheck(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
	}{
		{"empty", Schema{}},
		{"duplicate", Schema{Fields: []Spec{
			{Name: "a", Kind: KindText, Patterns: []*regexp.Regexp{re(`(x)`)}},
			{Name: "a", Kind: KindText, Patterns: []*regexp.Regexp{re(`(y)`)}},
		}}},
		{"group out of range", Schema{Fields: []Spec{{Name: "a", Kind: KindText, Group: 2, Patterns: []*regexp.Regexp{re(`(x)`)}}}}},
		{"bad kind", Schema{Fields: []Spec{{Name: "a", Kind: "date", Patterns: []*regexp.Regexp{re(`(x)`)}}}}},
		{"derived of text", Schema{
			Fields:  []Spec{{Name: "a", Kind: KindText, Patterns: []*regexp.Regexp{re(`(x)`)}}},
			Derived: []DerivedSpec{{Name: "sum", SumOf: []string{"a"}}},
		}},
		{"cross check unknown", Schema{
			Fields:     []Spec{{Name: "a", Kind: KindNumber, Patterns: []*regexp.Regexp{re(`(1)`)}}},
			CrossCheck: &CrossCheckSpec{TotalField: "total"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(tt.schema)
			assert.Error(t, err)
		})
	}
}

func TestNumberNormalizer(t *testing.T) {
	n := NewNumberNormalizer(nil)
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"₹1,125.52", 1125.52, true},
		{" $ 1 000.00 ", 1000, true},
		{"Rs.450", 450, true},
		{"18%", 18, true},
		{"INR 12,00,000.50", 1200000.5, true},
		{"abc", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := n.Normalize(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestValueRendering(t *testing.T) {
	assert.Equal(t, "1125.52", Value{Kind: KindNumber, Number: 1125.52}.String())
	assert.Equal(t, "6, 9", Value{Kind: KindRateList, List: []float64{6, 9}}.String())
	assert.Equal(t, "0", FormatNumber(0))
	assert.True(t, Value{Kind: KindRateList, List: []float64{0}}.Empty())
	assert.False(t, Value{Kind: KindText, Text: "x"}.Empty())
}
