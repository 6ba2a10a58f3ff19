package llm

import (
	"strconv"
	"strings"
)

// SystemPrompt instructs a vision model to act as a plain OCR engine. The engine's own parser
// extracts fields, so the model must not summarize, reformat or translate.
const SystemPrompt = "You are an OCR engine for invoices. Transcribe ALL text visible in the image exactly as printed. " +
	"Keep the original reading order and put each printed line on its own line. " +
	"Keep labels together with their values (e.g. 'Invoice Date: 12/03/2024'). " +
	"Preserve numbers, currency symbols, punctuation and identifiers character for character. " +
	"Do not translate, summarize, explain or add markdown. If the image has no text, return an empty response."

// BuildUserPrompt names the page being transcribed; multi-page documents are sent one page at a time.
func BuildUserPrompt(pageNumber int) string {
	var b strings.Builder
	b.WriteString("Transcribe the text of this invoice page")
	if pageNumber > 0 {
		b.WriteString(" (page ")
		b.WriteString(strconv.Itoa(pageNumber))
		b.WriteString(")")
	}
	b.WriteString(". Return only the transcribed text.")
	return b.String()
}

// CleanTranscript strips code fences some models wrap around plain text answers.
func CleanTranscript(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], " ") {
		s = s[i+1:] // language tag
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
