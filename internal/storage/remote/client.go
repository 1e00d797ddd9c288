package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/storage"
	"github.com/formsnapper/backend/pkg/logger"
)

// Client is the remote persistence backend, a Milvus/Zilliz collection
// holding one row per chunk. Document metadata is derived from the grouped
// chunk rows on retrieval.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(context.Background(), client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Remote storage client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (r *Client) Close() error {
	return r.client.Close()
}

func (r *Client) Ping(ctx context.Context) error {
	if _, err := r.client.HasCollection(ctx, r.collectionName); err != nil {
		return fmt.Errorf("remote storage unreachable: %w", err)
	}
	return nil
}

func (r *Client) Location() storage.Location {
	return storage.LocationRemote
}

func (r *Client) CreateCollection(ctx context.Context) error {
	has, err := r.client.HasCollection(ctx, r.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", r.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: r.collectionName,
		Description:    "Knowledge base chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "user_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "file_name",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", r.vectorDim)},
			},
			{
				Name:     "uploaded_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := r.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := r.client.CreateIndex(ctx, r.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.LoadCollection(ctx, r.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", r.collectionName))
	return nil
}

func (r *Client) Save(ctx context.Context, doc *storage.Document) (*storage.SaveResult, error) {
	if len(doc.Chunks) == 0 {
		return nil, storage.ErrNoChunks
	}

	// Supersede any prior rows for this document before writing the new set.
	// Deletion goes through primary keys; expression deletes are limited to
	// the pk field on this server version.
	priorIDs, _, err := r.queryIDs(ctx, fmt.Sprintf(`user_id == %q && document_id == %q`, doc.UserID, doc.DocumentID))
	if err != nil {
		return nil, fmt.Errorf("failed to look up prior chunks: %w", err)
	}
	if len(priorIDs) > 0 {
		if err := r.deleteByIDs(ctx, priorIDs); err != nil {
			return nil, fmt.Errorf("failed to clear prior chunks: %w", err)
		}
	}

	n := len(doc.Chunks)
	chunkIDs := make([]string, n)
	userIDs := make([]string, n)
	documentIDs := make([]string, n)
	fileNames := make([]string, n)
	chunkIndexes := make([]int64, n)
	texts := make([]string, n)
	embeddings := make([][]float32, n)
	uploadedAts := make([]int64, n)

	for i, chunk := range doc.Chunks {
		chunkIDs[i] = fmt.Sprintf("%s_chunk_%d", doc.DocumentID, chunk.ChunkIndex)
		userIDs[i] = doc.UserID
		documentIDs[i] = doc.DocumentID
		fileNames[i] = chunk.FileName
		chunkIndexes[i] = int64(chunk.ChunkIndex)
		texts[i] = chunk.Text
		embeddings[i] = chunk.Embedding
		uploadedAts[i] = chunk.Timestamp.Unix()
	}

	_, err = r.client.Insert(
		ctx,
		r.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("user_id", userIDs),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("file_name", fileNames),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", r.vectorDim, embeddings),
		entity.NewColumnInt64("uploaded_at", uploadedAts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := r.client.Flush(ctx, r.collectionName, false); err != nil {
		return nil, fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Document saved to remote storage",
		zap.String("document_id", doc.DocumentID),
		zap.Int("chunks", n),
	)

	return &storage.SaveResult{
		DocumentID:  doc.DocumentID,
		ChunksSaved: n,
		Storage:     storage.LocationRemote,
	}, nil
}

func (r *Client) Retrieve(ctx context.Context, userID, documentID string) ([]storage.Chunk, []storage.DocumentMeta, error) {
	expr := fmt.Sprintf(`user_id == %q`, userID)
	if documentID != "" {
		expr += fmt.Sprintf(` && document_id == %q`, documentID)
	}

	rs, err := r.client.Query(
		ctx,
		r.collectionName,
		nil,
		expr,
		[]string{"document_id", "file_name", "chunk_index", "text", "embedding", "uploaded_at"},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	chunks, metas, err := parseResultSet(rs)
	if err != nil {
		return nil, nil, err
	}
	if documentID != "" && len(chunks) == 0 {
		return nil, nil, fmt.Errorf("document %s: %w", documentID, storage.ErrDocumentNotFound)
	}

	logger.Debug("Chunks retrieved from remote storage",
		zap.String("user_id", userID),
		zap.Int("chunks", len(chunks)),
		zap.Int("documents", len(metas)),
	)

	return chunks, metas, nil
}

func parseResultSet(rs client.ResultSet) ([]storage.Chunk, []storage.DocumentMeta, error) {
	docIDCol := rs.GetColumn("document_id")
	if docIDCol == nil || docIDCol.Len() == 0 {
		return nil, nil, nil
	}

	fileCol := rs.GetColumn("file_name")
	indexCol := rs.GetColumn("chunk_index")
	textCol := rs.GetColumn("text")
	timeCol := rs.GetColumn("uploaded_at")

	embCol, ok := rs.GetColumn("embedding").(*entity.ColumnFloatVector)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected embedding column type")
	}
	vectors := embCol.Data()

	type docGroup struct {
		meta storage.DocumentMeta
	}
	groups := make(map[string]*docGroup)
	var chunks []storage.Chunk

	for i := 0; i < docIDCol.Len(); i++ {
		docID, err := docIDCol.GetAsString(i)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read document_id: %w", err)
		}
		fileName, _ := fileCol.GetAsString(i)
		chunkIndex, _ := indexCol.GetAsInt64(i)
		text, _ := textCol.GetAsString(i)
		uploadedAt, _ := timeCol.GetAsInt64(i)

		chunk := storage.Chunk{
			FileName:   fileName,
			ChunkIndex: int(chunkIndex),
			Text:       text,
			Embedding:  vectors[i],
			Timestamp:  time.Unix(uploadedAt, 0),
		}
		chunks = append(chunks, chunk)

		g, ok := groups[docID]
		if !ok {
			g = &docGroup{meta: storage.DocumentMeta{
				DocumentID: docID,
				FileName:   fileName,
				UploadedAt: chunk.Timestamp,
			}}
			groups[docID] = g
		}
		g.meta.ChunksProcessed++
		if chunk.Timestamp.After(g.meta.UploadedAt) {
			g.meta.UploadedAt = chunk.Timestamp
		}
	}

	metas := make([]storage.DocumentMeta, 0, len(groups))
	for _, g := range groups {
		metas = append(metas, g.meta)
	}

	return chunks, metas, nil
}

func (r *Client) Delete(ctx context.Context, userID, fileName string) (*storage.DeleteResult, error) {
	expr := fmt.Sprintf(`user_id == %q && file_name == %q`, userID, fileName)

	ids, docs, err := r.queryIDs(ctx, expr)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("file %s: %w", fileName, storage.ErrDocumentNotFound)
	}

	if err := r.deleteByIDs(ctx, ids); err != nil {
		return nil, err
	}

	logger.Info("Document deleted from remote storage",
		zap.String("file_name", fileName),
		zap.Int("chunks_deleted", len(ids)),
	)

	return &storage.DeleteResult{
		ChunksDeleted:    len(ids),
		DocumentsDeleted: docs,
	}, nil
}

// Purge removes every chunk belonging to userID. The remote backend has no
// unscoped purge; the server rejects an empty query expression.
func (r *Client) Purge(ctx context.Context, userID string) (*storage.DeleteResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("remote purge requires a user id")
	}

	ids, docs, err := r.queryIDs(ctx, fmt.Sprintf(`user_id == %q`, userID))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &storage.DeleteResult{}, nil
	}

	if err := r.deleteByIDs(ctx, ids); err != nil {
		return nil, err
	}

	logger.Info("Remote storage purged",
		zap.String("user_id", userID),
		zap.Int("chunks_deleted", len(ids)),
		zap.Int("documents_deleted", docs),
	)

	return &storage.DeleteResult{
		ChunksDeleted:    len(ids),
		DocumentsDeleted: docs,
	}, nil
}

func (r *Client) Stats(ctx context.Context, userID string) (*storage.UsageStats, error) {
	ids, docs, err := r.queryIDs(ctx, fmt.Sprintf(`user_id == %q`, userID))
	if err != nil {
		return nil, err
	}
	return &storage.UsageStats{Documents: docs, Chunks: len(ids)}, nil
}

// queryIDs returns the chunk primary keys matching expr plus the distinct
// document count.
func (r *Client) queryIDs(ctx context.Context, expr string) ([]string, int, error) {
	rs, err := r.client.Query(ctx, r.collectionName, nil, expr, []string{"chunk_id", "document_id"})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query chunk ids: %w", err)
	}

	idCol := rs.GetColumn("chunk_id")
	docCol := rs.GetColumn("document_id")
	if idCol == nil || idCol.Len() == 0 {
		return nil, 0, nil
	}

	ids := make([]string, 0, idCol.Len())
	docs := make(map[string]struct{})
	for i := 0; i < idCol.Len(); i++ {
		id, err := idCol.GetAsString(i)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read chunk_id: %w", err)
		}
		ids = append(ids, id)

		if docID, err := docCol.GetAsString(i); err == nil {
			docs[docID] = struct{}{}
		}
	}

	return ids, len(docs), nil
}

func (r *Client) deleteByIDs(ctx context.Context, ids []string) error {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	expr := fmt.Sprintf(`chunk_id in [%s]`, strings.Join(quoted, ", "))
	return r.deleteByExpr(ctx, expr)
}

func (r *Client) deleteByExpr(ctx context.Context, expr string) error {
	if err := r.client.Delete(ctx, r.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
