package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-trust/internal/extract"
)

func fastRetries(t *testing.T) {
	t.Helper()
	orig := RetryBaseDelay
	RetryBaseDelay = time.Millisecond
	t.Cleanup(func() { RetryBaseDelay = orig })
}

func TestDoWithRetry_RetriesOn429(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	resp, err := DoWithRetry(context.Background(), srv.Client(), req, 5)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoWithRetry_ExhaustedReturnsLast429(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := DoWithRetry(context.Background(), srv.Client(), req, 2)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoWithRetry_ZeroDisablesNegativeDefaults(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := DoWithRetry(context.Background(), srv.Client(), req, 0)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	resp, err = DoWithRetry(context.Background(), srv.Client(), req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1+defaultMaxRetries), calls.Load())
}

func TestDoWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	orig := RetryBaseDelay
	RetryBaseDelay = time.Hour
	t.Cleanup(func() { RetryBaseDelay = orig })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err := DoWithRetry(ctx, srv.Client(), req, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Key"))
		if r.URL.Path == "/fail" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	raw, status, err := SendJSON(context.Background(), srv.Client(), srv.URL, map[string]int{"n": 1}, map[string]string{"X-Key": "v"}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	raw, status, err = SendJSON(context.Background(), srv.Client(), srv.URL+"/fail", nil, map[string]string{"X-Key": "v"}, 1, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, string(raw), "boom")
}

func TestCleanTranscript(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Invoice #: 1 \n", "Invoice #: 1"},
		{"```\nTotal: 5\n```", "Total: 5"},
		{"```text\nTotal: 5\n```", "Total: 5"},
		{"```Total: 5 due```", "Total: 5 due"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTranscript(tt.in), tt.in)
	}
}

func TestCheckPageAndDataURL(t *testing.T) {
	assert.NoError(t, CheckPage(extract.Page{Number: 1, Format: "png", Data: []byte{1}}))
	assert.ErrorContains(t, CheckPage(extract.Page{Number: 1, Format: "png"}), "empty image")
	assert.ErrorContains(t, CheckPage(extract.Page{Number: 1, Format: "heic", Data: []byte{1}}), "converted")
	assert.ErrorContains(t, CheckPage(extract.Page{Number: 1, Format: "png", Data: make([]byte, MaxVisionBytes+1)}), "vision limit")

	assert.Equal(t, "data:image/jpeg;base64,AQI=", DataURL(extract.Page{Format: "jpeg", Data: []byte{1, 2}}))
	assert.Equal(t, "image/png", ImageMIME(""))
	assert.Equal(t, "image/webp", ImageMIME("webp"))
	assert.Equal(t, "Transcribe the text of this invoice page (page 2). Return only the transcribed text.", BuildUserPrompt(2))
}
