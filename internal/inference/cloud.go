package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/pkg/circuitbreaker"
	"github.com/formsnapper/backend/pkg/logger"
	"github.com/formsnapper/backend/pkg/retry"
)

var (
	// ErrMissingCredential indicates the cloud provider was asked to run
	// without an API key configured.
	ErrMissingCredential = errors.New("cloud inference requires an API key")

	// ErrProviderUnavailable indicates the provider cannot serve requests
	// right now (not running, unreachable, circuit open).
	ErrProviderUnavailable = errors.New("inference provider unavailable")

	// ErrEmptyCompletion indicates the provider answered with no content.
	ErrEmptyCompletion = errors.New("provider returned an empty completion")
)

// CloudClient runs completions against a hosted model. All calls go through
// a circuit breaker and bounded retries.
type CloudClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewCloudClient(apiKey, model string, temperature float32, maxTokens int) *CloudClient {
	c := &CloudClient{
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}

	if apiKey == "" {
		logger.Warn("Cloud inference disabled: no API key configured")
		return c
	}

	c.client = openai.NewClient(apiKey)
	c.cb = circuitbreaker.New("cloud-inference", circuitbreaker.Config{
		MaxRequests:      5,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})
	c.retryConfig = retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Cloud inference client initialized", zap.String("model", model))
	return c
}

func (c *CloudClient) Name() string { return "cloud" }

// Available reports whether the client was configured with a credential.
func (c *CloudClient) Available() bool { return c.client != nil }

func (c *CloudClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.client == nil {
		return "", ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var content string
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: c.model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleUser, Content: prompt},
				},
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
			})
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}

			logger.Debug("Cloud completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return content, nil
}
