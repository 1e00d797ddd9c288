package inference

import (
	"context"

	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/internal/tokens"
	"github.com/formsnapper/backend/pkg/logger"
)

// Provider is a single inference engine the hybrid router can delegate to.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Available() bool
	Name() string
}

// HybridClient routes each prompt by its token estimate: small prompts try
// the on-device engine first and fall back to cloud, large prompts go
// straight to cloud. The routing decision is made per call, never cached.
type HybridClient struct {
	onDevice  Provider
	cloud     Provider
	threshold int
}

func NewHybridClient(onDevice, cloud Provider, threshold int) *HybridClient {
	if threshold <= 0 {
		threshold = tokens.DefaultThreshold
	}
	return &HybridClient{onDevice: onDevice, cloud: cloud, threshold: threshold}
}

// Ready reports whether at least one underlying engine can serve requests.
func (h *HybridClient) Ready() bool {
	return (h.onDevice != nil && h.onDevice.Available()) ||
		(h.cloud != nil && h.cloud.Available())
}

func (h *HybridClient) Name() string { return "hybrid" }

func (h *HybridClient) Complete(ctx context.Context, prompt string) (string, error) {
	content, _, err := h.Run(ctx, prompt)
	return content, err
}

// Run completes the prompt and reports which engine answered.
func (h *HybridClient) Run(ctx context.Context, prompt string) (string, string, error) {
	estimated := tokens.Estimate(prompt)
	mode := tokens.ChooseMode(estimated, h.threshold)

	logger.Debug("Routing inference",
		zap.Int("estimated_tokens", estimated),
		zap.String("mode", mode.String()),
	)

	if mode == tokens.ModeOnDeviceThenCloud && h.onDevice != nil && h.onDevice.Available() {
		content, err := h.onDevice.Complete(ctx, prompt)
		if err == nil {
			metrics.InferenceMode.WithLabelValues(h.onDevice.Name()).Inc()
			return content, h.onDevice.Name(), nil
		}
		logger.Warn("On-device inference failed, trying cloud", zap.Error(err))
	}

	if h.cloud == nil || !h.cloud.Available() {
		return "", "", ErrProviderUnavailable
	}

	content, err := h.cloud.Complete(ctx, prompt)
	if err != nil {
		return "", "", err
	}

	metrics.InferenceMode.WithLabelValues(h.cloud.Name()).Inc()
	return content, h.cloud.Name(), nil
}
