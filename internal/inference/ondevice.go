package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/pkg/logger"
)

// OnDeviceClient runs completions against a local model server. It is the
// privacy-preferred engine: prompts never leave the machine.
type OnDeviceClient struct {
	llm   *ollama.LLM
	model string
}

func NewOnDeviceClient(serverURL, model string) *OnDeviceClient {
	c := &OnDeviceClient{model: model}

	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		logger.Warn("On-device inference disabled",
			zap.String("server_url", serverURL),
			zap.Error(err),
		)
		return c
	}

	c.llm = llm
	logger.Info("On-device inference client initialized",
		zap.String("server_url", serverURL),
		zap.String("model", model),
	)
	return c
}

func (c *OnDeviceClient) Name() string { return "on-device" }

func (c *OnDeviceClient) Available() bool { return c.llm != nil }

func (c *OnDeviceClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.llm == nil {
		return "", ErrProviderUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	content, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, err)
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}

	logger.Debug("On-device completion generated", zap.Int("length", len(content)))
	return content, nil
}
