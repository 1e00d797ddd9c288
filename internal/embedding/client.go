package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	rediscache "github.com/formsnapper/backend/internal/cache/redis"
	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/pkg/circuitbreaker"
	"github.com/formsnapper/backend/pkg/logger"
	"github.com/formsnapper/backend/pkg/retry"
	"github.com/formsnapper/backend/pkg/utils"
)

var (
	ErrMissingAPIKey     = errors.New("embedding API key is not configured")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Client turns text into fixed-length vectors via the embedding service,
// with a cache-aside layer in front of the API call.
type Client struct {
	api         *openai.Client
	model       string
	dim         int
	cache       *rediscache.Client
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// NewClient builds an embedding client. cache may be nil.
func NewClient(apiKey, model string, dim int, cache *rediscache.Client) *Client {
	var api *openai.Client
	if apiKey != "" {
		api = openai.NewClient(apiKey)
	}

	cb := circuitbreaker.New("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Embedding client initialized",
		zap.String("model", model),
		zap.Int("dim", dim),
		zap.Bool("cache", cache != nil),
	)

	return &Client{
		api:         api,
		model:       model,
		dim:         dim,
		cache:       cache,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Dimension() int {
	return c.dim
}

// Embed returns the embedding vector for text, consulting the cache first.
// Cache failures are logged and fall through to the API.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.api == nil {
		return nil, ErrMissingAPIKey
	}

	textHash := utils.HashString(text)

	if c.cache != nil {
		cached, ok, err := c.cache.GetEmbedding(ctx, textHash)
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok && len(cached) != c.dim {
			// A vector cached under an older dimension config would be
			// rejected by the vector store; treat it as a miss.
			logger.Warn("Cached embedding has stale dimension, refetching",
				zap.Int("cached", len(cached)),
				zap.Int("want", c.dim),
			)
			metrics.CacheMisses.WithLabelValues("embedding").Inc()
		} else if ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return cached, nil
		} else {
			metrics.CacheMisses.WithLabelValues("embedding").Inc()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.api.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.model),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response contained no data")
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// The collection schema is declared with c.dim; a vector of any other
	// length would fail every remote insert and quietly degrade storage to
	// local-only, so reject it here instead.
	if len(embedding) != c.dim {
		return nil, fmt.Errorf("%w: model %s returned %d dimensions, storage expects %d",
			ErrDimensionMismatch, c.model, len(embedding), c.dim)
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, textHash, embedding); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return embedding, nil
}
