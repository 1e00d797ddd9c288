package kb

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/internal/storage"
	"github.com/formsnapper/backend/pkg/logger"
)

type SearchResult struct {
	Chunk      storage.Chunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}

// Search embeds the query, scores it against every chunk in the user's
// knowledge base, keeps results strictly above the minimum similarity and
// returns the top K ordered by descending similarity.
func (i *Ingestor) Search(ctx context.Context, userID, query string) ([]SearchResult, error) {
	queryVector, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, _, err := i.store.Retrieve(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	var results []SearchResult
	for _, chunk := range chunks {
		similarity := CosineSimilarity(queryVector, chunk.Embedding)
		if similarity > i.cfg.SearchMinSimilarity {
			results = append(results, SearchResult{Chunk: chunk, Similarity: similarity})
		}
	}

	sort.Slice(results, func(a, b int) bool {
		return results[a].Similarity > results[b].Similarity
	})

	if len(results) > i.cfg.SearchTopK {
		results = results[:i.cfg.SearchTopK]
	}

	metrics.KnowledgeSearches.Inc()
	logger.Debug("Knowledge base searched",
		zap.String("user_id", userID),
		zap.Int("candidates", len(chunks)),
		zap.Int("results", len(results)),
	)

	return results, nil
}
