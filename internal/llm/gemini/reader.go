// Package gemini transcribes invoice page images with Google's Gemini models.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/llm"
)

const defaultModel = "gemini-1.5-flash"

// generator is the part of *genai.GenerativeModel the reader needs.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Reader implements extract.ImageReader on top of a Gemini model.
type Reader struct {
	client    *genai.Client
	model     generator
	modelName string
	logger    *slog.Logger
}

var _ llm.Transcriber = (*Reader)(nil)

func NewReader(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Reader, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, common.NewConfigError("gemini: GEMINI_API_KEY is not set", nil)
	}
	if modelName == "" {
		modelName = defaultModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	m := cl.GenerativeModel(modelName)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(llm.SystemPrompt)}}
	m.SetTemperature(0)
	return newReader(cl, m, modelName, logger), nil
}

func newReader(cl *genai.Client, m generator, modelName string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{client: cl, model: m, modelName: modelName, logger: logger}
}

func (r *Reader) Model() string { return r.modelName }

func (r *Reader) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Reader) ReadImage(ctx context.Context, page extract.Page) (string, error) {
	if err := llm.CheckPage(page); err != nil {
		return "", err
	}
	start := time.Now()

	format := strings.TrimPrefix(llm.ImageMIME(page.Format), "image/")
	resp, err := r.model.GenerateContent(ctx,
		genai.Text(llm.BuildUserPrompt(page.Number)),
		genai.ImageData(format, page.Data),
	)
	if err != nil {
		r.logger.Error("gemini.transcribe.failed", "model", r.modelName, "page", page.Number, "error", err)
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := llm.CleanTranscript(responseText(resp))
	if text == "" {
		return "", fmt.Errorf("gemini: empty transcription for page %d", page.Number)
	}
	r.logger.Info("gemini.transcribe.ok",
		"model", r.modelName,
		"page", page.Number,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
