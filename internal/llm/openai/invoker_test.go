package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/extract"
)

func completion(content string) string {
	payload := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1760000000,
		"model":   "gemini-2.0-flash",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func newTestInvoker(t *testing.T, handler http.HandlerFunc) (*Invoker, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	inv, err := New(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return inv, &hits
}

func testRequest() extract.Request {
	return extract.Request{Text: "45 vagas para Radiologia", Schema: edital.DefaultSchema()}
}

func TestInvokeSuccess(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	inv, hits := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &payload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(`{"instituicao":"ENARE"}`))
	})

	content, err := inv.Invoke(context.Background(), "gemini-2.0-flash", testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"instituicao":"ENARE"}`, content)
	assert.Equal(t, int32(1), hits.Load())

	assert.Equal(t, "gemini-2.0-flash", payload["model"])
	format, ok := payload["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
}

func TestInvokeRateLimitIsQuota(t *testing.T) {
	t.Parallel()

	inv, hits := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded","type":"rate_limit"}}`)
	})

	_, err := inv.Invoke(context.Background(), "gemini-2.5-flash", testRequest())
	var be *extract.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, extract.KindQuota, be.Kind)
	assert.Equal(t, 7*time.Second, be.RetryAfter)
	assert.Equal(t, "gemini-2.5-flash", be.Backend)
	// SDK retries are disabled.
	assert.Equal(t, int32(1), hits.Load())
}

func TestInvokeNotFound(t *testing.T) {
	t.Parallel()

	inv, _ := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"model not found"}}`)
	})

	_, err := inv.Invoke(context.Background(), "gemini-1.0-pro", testRequest())
	assert.Equal(t, extract.KindNotFound, extract.Classify(err))
}

func TestInvokeServerErrorIsOther(t *testing.T) {
	t.Parallel()

	inv, hits := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"internal"}}`)
	})

	_, err := inv.Invoke(context.Background(), "gemini-2.0-flash", testRequest())
	assert.Equal(t, extract.KindOther, extract.Classify(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestInvokeEmptyChoices(t *testing.T) {
	t.Parallel()

	inv, _ := newTestInvoker(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})

	_, err := inv.Invoke(context.Background(), "m", testRequest())
	assert.Equal(t, extract.KindOther, extract.Classify(err))
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("-1", now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
}
