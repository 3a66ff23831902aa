package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/sashabaranov/go-openai"

	"pddlsynth/internal/logging"
)

// OpenAIConfig configures the OpenAI completer.
type OpenAIConfig struct {
	APIKey  string `yaml:"-" json:"-"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Model   string `yaml:"model" json:"model" validate:"required"`
	// MaxRetries bounds attempts on rate limiting.
	MaxRetries int           `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	LogProbs   bool          `yaml:"logprobs" json:"logprobs"`
}

// DefaultOpenAIConfig returns gpt-4-1106-preview with five attempts.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:     apiKey,
		Model:      "gpt-4-1106-preview",
		MaxRetries: 5,
		RetryDelay: time.Second,
		LogProbs:   true,
	}
}

// OpenAI completes chats through the OpenAI API.
type OpenAI struct {
	client  *openai.Client
	cfg     OpenAIConfig
	retrier retry.Retry[reply]
}

type reply struct {
	resp Response
	err  error
}

// errRateLimited marks attempts the retrier should repeat.
var errRateLimited = errors.New("rate limited")

// NewOpenAI creates a completer.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key not configured")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		retrier: retry.New[reply](retry.Config{
			MaxAttempts:   cfg.MaxRetries,
			InitialDelay:  cfg.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
		}),
	}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.cfg.Model }

// Complete implements Completer. Rate-limit responses are retried with
// exponential backoff; other failures are returned at once.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	creq := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		N:           req.N,
		MaxTokens:   req.MaxTokens,
		LogProbs:    o.cfg.LogProbs,
	}

	attempt := 0
	r, err := o.retrier.Do(ctx, func(ctx context.Context) (reply, error) {
		attempt++
		resp, err := o.client.CreateChatCompletion(ctx, creq)
		if err != nil {
			if rateLimited(err) {
				logging.LLMWarn("rate limited on attempt %d/%d: %v", attempt, o.cfg.MaxRetries, err)
				return reply{}, fmt.Errorf("%w: %v", errRateLimited, err)
			}
			return reply{err: fmt.Errorf("OpenAI API call failed: %w", err)}, nil
		}
		return reply{resp: convert(resp)}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, err
	}
	return r.resp, r.err
}

func rateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

func convert(resp openai.ChatCompletionResponse) Response {
	out := Response{
		Contents: make([]string, len(resp.Choices)),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for i, c := range resp.Choices {
		out.Contents[i] = c.Message.Content
		if c.LogProbs != nil && len(c.LogProbs.Content) > 0 {
			var sum float64
			for _, lp := range c.LogProbs.Content {
				sum += lp.LogProb
			}
			out.LogProbMeans = append(out.LogProbMeans, sum/float64(len(c.LogProbs.Content)))
		}
	}
	return out
}
