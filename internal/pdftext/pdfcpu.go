// Package pdftext reads the text layer of PDFs natively with pdfcpu, without external binaries.
package pdftext

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

// Strategy extracts text from PDF content streams page by page.
type Strategy struct {
	maxPages int
	logger   *slog.Logger
}

func New(maxPages int, logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{maxPages: maxPages, logger: logger}
}

func (s *Strategy) Name() string { return constants.StrategyPDFCPU }

func (s *Strategy) Extract(ctx context.Context, doc extract.Document) (string, error) {
	if doc.Format() != constants.PDF {
		return "", fmt.Errorf("pdfcpu: unsupported format %q", doc.Format())
	}

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Content), conf)
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	last := pctx.PageCount
	if s.maxPages > 0 && last > s.maxPages {
		last = s.maxPages
	}
	var pages []string
	for pageNr := 1; pageNr <= last; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if txt := pageText(pctx, pageNr); txt != "" {
			pages = append(pages, txt)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdfcpu: no text content in %d page(s)", pctx.PageCount)
	}
	s.logger.Debug("pdfcpu.ok", "document_id", doc.ID, "pages", pctx.PageCount, "text_pages", len(pages))
	return strings.Join(pages, constants.PageBreak), nil
}

func pageText(pctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return TextFromContentStream(data)
}

// TextFromContentStream collects the strings shown by the Tj, TJ, ' and " operators.
// Positioning operators (Td, TD, Tm, T*, ET) start a new line so label/value pairs stay together.
// Operators are found by tokenizing, so streams written on a single line are read the same way.
func TextFromContentStream(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	var operands []string
	show := func() {
		for _, o := range operands {
			sb.WriteString(o)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c), c == '[', c == ']', c == '{', c == '}':
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			raw, next := readLiteral(data, i)
			operands = append(operands, decodePDFString(raw))
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<', c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				i = len(data)
				continue
			}
			operands = append(operands, decodeHexString(data[i+1:i+end]))
			i += end + 1
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			switch tok := string(data[start:i]); tok {
			case "Tj", "TJ":
				show()
			case "'", "\"":
				newline()
				show()
			case "Td", "TD", "Tm", "T*", "ET":
				newline()
			default:
				if !isOperator(tok) {
					continue
				}
			}
			operands = operands[:0]
		}
	}
	return cleanLines(sb.String())
}

// readLiteral returns the bytes of the string literal opening at data[start] and the index after it.
// Balanced unescaped parentheses are part of the string.
func readLiteral(data []byte, start int) ([]byte, int) {
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return data[start+1 : i], i + 1
			}
		}
	}
	return data[start+1:], len(data)
}

func decodeHexString(raw []byte) string {
	var digits []byte
	for _, c := range raw {
		if !isPDFSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(out, digits)
	if err != nil {
		return ""
	}
	return string(out[:n])
}

// isOperator tells operators from numeric and name operands, which stay on the stack.
func isOperator(tok string) bool {
	if tok == "" || tok[0] == '/' {
		return false
	}
	c := tok[0]
	return !(c >= '0' && c <= '9' || c == '-' || c == '+' || c == '.')
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '%':
		return true
	}
	return false
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			// octal escape, up to three digits (e.g. \040 for space)
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanLines collapses whitespace inside lines, drops non-printables and empty lines.
func cleanLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			case unicode.IsPrint(r):
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if l := strings.TrimSpace(sb.String()); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
