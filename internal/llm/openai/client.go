package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/llm"
)

var _ llm.Transcriber = (*Client)(nil)

// ReadImage implements extract.ImageReader by sending the page as an image_url part.
func (c *Client) ReadImage(ctx context.Context, page extract.Page) (string, error) {
	if err := llm.CheckPage(page); err != nil {
		return "", err
	}
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.transcribe.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"page", page.Number,
		"image_bytes", len(page.Data),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": llm.BuildUserPrompt(page.Number)},
				{"type": "image_url", "image_url": map[string]any{"url": llm.DataURL(page), "detail": "high"}},
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.cfg.MaxRetries, c.logger)
	if err != nil {
		c.logger.Error("llm.transcribe.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("openai status %d: %w: %s", status, err, truncate(string(raw), 256))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.transcribe.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	text := llm.CleanTranscript(cc.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: empty transcription for page %d", page.Number)
	}

	c.logger.Info("llm.transcribe.ok",
		"req_id", rid,
		"page", page.Number,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
