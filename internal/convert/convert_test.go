package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

const invoiceHTML = `<html><head><style>p{color:red}</style><script>alert("x")</script></head>
<body>
<p><b>Invoice #:</b> INV-124</p>
<p>Invoice Date: 12/03/2024</p>
<table>
<tr><th>Item</th><th>Qty</th></tr>
<tr><td>Widget</td><td>2</td></tr>
</table>
</body></html>`

func TestHTML(t *testing.T) {
	h := NewHTML(nil)
	assert.Equal(t, constants.StrategyHTML, h.Name())

	text, err := h.Extract(context.Background(), extract.Document{ID: "a", Name: "bill.html", Content: []byte(invoiceHTML)})
	require.NoError(t, err)
	assert.Contains(t, text, "Invoice #: INV-124")
	assert.Contains(t, text, "Invoice Date: 12/03/2024")
	assert.Contains(t, text, "Widget")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color:red")
}

func TestHTML_Errors(t *testing.T) {
	h := NewHTML(nil)
	ctx := context.Background()

	_, err := h.Extract(ctx, extract.Document{ID: "a", Name: "a.pdf", Content: []byte("%PDF")})
	assert.ErrorContains(t, err, "unsupported format")

	_, err = h.Extract(ctx, extract.Document{ID: "b", Name: "b.html", Content: []byte("<script>x()</script>")})
	assert.ErrorContains(t, err, "no text content")

	_, err = h.Extract(ctx, extract.Document{ID: "c", Name: "c.html", Content: []byte{0xff, 0xfe}})
	assert.ErrorContains(t, err, "UTF-8")
}

func TestDocconv_HTML(t *testing.T) {
	d := NewDocconv(false, nil)
	assert.Equal(t, constants.StrategyDocconv, d.Name())

	text, err := d.Extract(context.Background(), extract.Document{
		ID: "a", Name: "bill", MIMEType: "text/html; charset=utf-8", Content: []byte(invoiceHTML),
	})
	require.NoError(t, err)
	assert.Contains(t, text, "INV-124")
}

func TestDocconv_ContentType(t *testing.T) {
	d := NewDocconv(false, nil)
	tests := []struct {
		doc  extract.Document
		want string
	}{
		{extract.Document{Name: "a.pdf"}, "application/pdf"},
		{extract.Document{Name: "a.docx"}, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{extract.Document{Name: "x", MIMEType: "Text/HTML; charset=utf-8"}, "text/html"},
		{extract.Document{Name: "a.png"}, ""},
		{extract.Document{Name: "a.txt"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.contentType(tt.doc), tt.doc.Name)
	}

	_, err := d.Extract(context.Background(), extract.Document{ID: "a", Name: "a.png"})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestDocconv_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDocconv(false, nil).Extract(ctx, extract.Document{ID: "a", Name: "a.html", Content: []byte(invoiceHTML)})
	assert.ErrorIs(t, err, context.Canceled)
}
