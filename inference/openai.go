package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quill-labs/chat-relay/internal/logging"
	"github.com/quill-labs/chat-relay/internal/metrics"
)

// DefaultSystemPrompt steers the model when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful AI assistant. Provide clear, concise, and helpful responses."

// OpenAIOptions configures NewOpenAI.
type OpenAIOptions struct {
	// APIKey authenticates with the provider. Required.
	APIKey string
	// BaseURL overrides the API endpoint; empty uses the provider default.
	// Any OpenAI-compatible endpoint works.
	BaseURL string
	// DefaultModel is used when a request does not name a model.
	DefaultModel string
	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string
	// MaxTokens caps completions when the request does not (default 500).
	MaxTokens int
	// Temperature is the default sampling temperature (default 0.7).
	Temperature float64
	// Retry bounds the transient-failure retry loop.
	Retry RetryPolicy
}

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
// It holds no mutable state across calls beyond the SDK's connection pool.
type OpenAIClient struct {
	api          openai.Client
	defaultModel string
	systemPrompt string
	maxTokens    int
	temperature  float64
	retry        RetryPolicy
}

// NewOpenAI creates an OpenAI-compatible inference client. The SDK's own
// retry loop is disabled; the relay owns the retry policy so attempt counts
// and backoff timing are exact.
func NewOpenAI(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("inference: API key is required")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &OpenAIClient{
		api:          openai.NewClient(reqOpts...),
		defaultModel: opts.DefaultModel,
		systemPrompt: opts.SystemPrompt,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
		retry:        opts.Retry.withDefaults(),
	}, nil
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string { return "openai" }

// Complete sends a chat completion, retrying transient failures with
// exponential backoff. Auth and request errors fail immediately without
// consuming the retry budget.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	log := logging.FromContext(ctx)
	policy := c.retry

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			delay := policy.backoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			metrics.InferenceRetries.Inc()
			log.Info("retrying inference call", "attempt", attempt, "delay_ms", delay.Milliseconds())
		}

		resp, err := c.complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		status, transient := classify(err)
		if !transient {
			if status == 401 || status == 403 {
				metrics.InferenceErrors.WithLabelValues("auth").Inc()
				return nil, &AuthError{Status: status, Err: err}
			}
			metrics.InferenceErrors.WithLabelValues("request").Inc()
			return nil, &RequestError{Status: status, Err: err}
		}
		lastErr = err
		log.Warn("transient inference failure", "attempt", attempt, "error", err.Error())
	}

	metrics.InferenceErrors.WithLabelValues("unavailable").Inc()
	return nil, &UnavailableError{Attempts: policy.Attempts, Err: lastErr}
}

// complete performs a single provider call.
func (c *OpenAIClient) complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.systemPrompt),
			openai.UserMessage(req.Query),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	}

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	return &Response{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

// Ping verifies provider reachability by listing models.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.Models.List(ctx); err != nil {
		return fmt.Errorf("inference ping: %w", err)
	}
	return nil
}

// classify maps an SDK error to (status, transient). Network-level failures
// carry no status and are transient; 408/429/5xx are transient; remaining
// 4xx are terminal.
func classify(err error) (status int, transient bool) {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return 0, true
	}
	switch {
	case apierr.StatusCode == 408 || apierr.StatusCode == 429:
		return apierr.StatusCode, true
	case apierr.StatusCode >= 500:
		return apierr.StatusCode, true
	default:
		return apierr.StatusCode, false
	}
}
