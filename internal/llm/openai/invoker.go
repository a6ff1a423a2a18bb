// Package openai implements extract.BackendInvoker over any OpenAI-compatible
// chat completions endpoint. By default it targets Gemini's compatibility
// layer, so model names look like "gemini-2.0-flash".
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/extract"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const systemPrompt = "Você extrai dados estruturados de editais de residência médica e responde somente com JSON."

// Config holds the settings for the invoker.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
	Logger     *zap.Logger
}

// Invoker sends one chat completion per call. It never retries; the
// extractor's fallback chain decides what happens next.
type Invoker struct {
	client openai.Client
	logger *zap.Logger
}

// New creates an Invoker. The API key is required.
func New(cfg Config) (*Invoker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai invoker: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = extract.DefaultCallTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return &Invoker{client: client, logger: logger.Named("openai")}, nil
}

// Invoke asks model for a JSON object matching req's schema and returns the
// raw message content.
func (i *Invoker) Invoke(ctx context.Context, model string, req extract.Request) (string, error) {
	rawSchema, err := req.ResponseSchema()
	if err != nil {
		return "", extract.OtherError(model, fmt.Errorf("render schema: %w", err))
	}
	var schema map[string]any
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return "", extract.OtherError(model, fmt.Errorf("decode schema: %w", err))
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(req.Prompt()),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Schema.Name,
					Schema: schema,
					Strict: openai.Bool(false),
				},
			},
		},
	}

	start := time.Now()
	resp, err := i.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapError(model, err)
	}
	i.logger.Debug("chat completion finished",
		zap.String("model", model),
		zap.Duration("dur", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	if len(resp.Choices) == 0 {
		return "", extract.OtherError(model, errors.New("no choices in response"))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", extract.OtherError(model, errors.New("empty message content"))
	}
	return content, nil
}

// mapError turns SDK failures into extract.BackendError kinds.
func mapError(model string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return extract.OtherError(model, err)
	}
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if apiErr.Response != nil {
			retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return extract.QuotaError(model, retryAfter, fmt.Errorf("rate limited (status %d): %w", apiErr.StatusCode, err))
	case http.StatusNotFound, http.StatusForbidden:
		return extract.NotFoundError(model, fmt.Errorf("model unavailable (status %d): %w", apiErr.StatusCode, err))
	default:
		return extract.OtherError(model, fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
	}
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
