package kb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/internal/storage"
	"github.com/formsnapper/backend/pkg/logger"
	"github.com/formsnapper/backend/pkg/utils"
)

var (
	ErrNoChunksEmbedded = errors.New("no chunks could be embedded")
	ErrEmptyDocument    = errors.New("document produced no chunks")
)

// Embedder is the collaborator boundary to the embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence contract the ingestor depends on; satisfied by
// storage.Manager.
type Store interface {
	Save(ctx context.Context, doc *storage.Document) (*storage.SaveResult, error)
	Retrieve(ctx context.Context, userID, documentID string) ([]storage.Chunk, []storage.DocumentMeta, error)
	Delete(ctx context.Context, userID, fileName string) (*storage.DeleteResult, error)
}

type Config struct {
	ChunkMaxChars       int
	DedupThreshold      float64
	SearchMinSimilarity float64
	SearchTopK          int
}

type Ingestor struct {
	embedder Embedder
	store    Store
	chunker  *Chunker
	dedup    *Deduplicator
	cfg      Config
}

type IngestResult struct {
	DocumentID        string
	ChunksEmbedded    int
	DuplicatesSkipped int
	ChunksFailed      int
	IsOverwrite       bool
	Storage           storage.Location
}

func NewIngestor(embedder Embedder, store Store, cfg Config) *Ingestor {
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = 5
	}
	if cfg.SearchMinSimilarity <= 0 {
		cfg.SearchMinSimilarity = 0.3
	}
	return &Ingestor{
		embedder: embedder,
		store:    store,
		chunker:  NewChunker(cfg.ChunkMaxChars),
		dedup:    NewDeduplicator(cfg.DedupThreshold),
		cfg:      cfg,
	}
}

// EmbedDocument chunks, embeds and persists a document. A re-upload under an
// existing file name replaces the prior chunks: they are removed before the
// new ones are written and deduplication is skipped for the upload. Chunks
// are embedded in order; individual failures are reported, not retried, and
// do not stop later chunks. The ingest fails outright only when zero chunks
// embed successfully.
func (i *Ingestor) EmbedDocument(ctx context.Context, userID, fileName, content string) (*IngestResult, error) {
	existingChunks, existingMetas, err := i.store.Retrieve(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	isOverwrite := false
	for _, meta := range existingMetas {
		if meta.FileName == fileName {
			isOverwrite = true
			break
		}
	}

	if isOverwrite {
		if _, err := i.store.Delete(ctx, userID, fileName); err != nil {
			return nil, fmt.Errorf("failed to remove prior version of %s: %w", fileName, err)
		}
		logger.Info("Replacing existing document", zap.String("file_name", fileName))
	}

	texts := i.chunker.Split(content)
	if len(texts) == 0 {
		return nil, ErrEmptyDocument
	}

	result := &IngestResult{IsOverwrite: isOverwrite}
	now := time.Now()
	var accepted []storage.Chunk

	for index, text := range texts {
		vector, err := i.embedder.Embed(ctx, text)
		if err != nil {
			logger.Warn("Chunk embedding failed",
				zap.String("file_name", fileName),
				zap.Int("chunk_index", index),
				zap.Error(err),
			)
			metrics.EmbeddingFailures.Inc()
			result.ChunksFailed++
			continue
		}

		// Dedup against old chunks of the same file is meaningless on an
		// overwrite: those chunks were just removed.
		if !isOverwrite {
			decision := i.dedup.Check(vector, existingChunks)
			if decision.IsDuplicate {
				logger.Debug("Duplicate chunk skipped",
					zap.String("file_name", fileName),
					zap.Int("chunk_index", index),
					zap.Float64("similarity", decision.Score),
					zap.String("matched_file", decision.Match.FileName),
				)
				metrics.DuplicatesSkipped.Inc()
				result.DuplicatesSkipped++
				continue
			}
		}

		accepted = append(accepted, storage.Chunk{
			FileName:   fileName,
			ChunkIndex: index,
			Text:       text,
			Embedding:  vector,
			Timestamp:  now,
		})
	}

	if result.ChunksFailed == len(texts) {
		return nil, fmt.Errorf("%w: all %d chunks failed for %s", ErrNoChunksEmbedded, len(texts), fileName)
	}

	result.DocumentID = utils.HashString(userID + ":" + fileName)
	result.ChunksEmbedded = len(accepted)
	result.Storage = storage.LocationLocal

	if len(accepted) > 0 {
		saveResult, err := i.store.Save(ctx, &storage.Document{
			UserID:     userID,
			DocumentID: result.DocumentID,
			FileName:   fileName,
			Chunks:     accepted,
			Meta: storage.DocumentMeta{
				DocumentID:      result.DocumentID,
				FileName:        fileName,
				ChunksProcessed: len(accepted),
				UploadedAt:      now,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save embeddings: %w", err)
		}
		result.Storage = saveResult.Storage
		metrics.ChunksEmbedded.Add(float64(len(accepted)))
	}

	logger.Info("Document ingested",
		zap.String("file_name", fileName),
		zap.String("document_id", result.DocumentID),
		zap.Int("chunks_embedded", result.ChunksEmbedded),
		zap.Int("duplicates_skipped", result.DuplicatesSkipped),
		zap.Int("chunks_failed", result.ChunksFailed),
		zap.Bool("overwrite", isOverwrite),
	)

	return result, nil
}
