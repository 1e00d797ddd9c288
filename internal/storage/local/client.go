package local

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"context"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/storage"
	"github.com/formsnapper/backend/pkg/logger"
)

const modeSettingKey = "storage_mode"

// Client is the local persistence backend. Besides the per-document records
// it keeps a flat chunk listing for fast full-knowledge-base reads, and it
// persists the authoritative storage mode.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("Local storage initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		document_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		chunks_processed INTEGER NOT NULL,
		uploaded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
	CREATE INDEX IF NOT EXISTS idx_documents_file ON documents(user_id, file_name);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(document_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_user ON chunks(user_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Local storage schema initialized")
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Location() storage.Location {
	return storage.LocationLocal
}

func (c *Client) Save(ctx context.Context, doc *storage.Document) (*storage.SaveResult, error) {
	if len(doc.Chunks) == 0 {
		return nil, storage.ErrNoChunks
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (document_id, user_id, file_name, chunks_processed, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			file_name = excluded.file_name,
			chunks_processed = excluded.chunks_processed,
			uploaded_at = excluded.uploaded_at
	`, doc.DocumentID, doc.UserID, doc.FileName, doc.Meta.ChunksProcessed, doc.Meta.UploadedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	// Replace semantics: an upsert under the same document id supersedes all
	// prior chunks.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.DocumentID); err != nil {
		return nil, fmt.Errorf("failed to clear prior chunks: %w", err)
	}

	for _, chunk := range doc.Chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding: %w", err)
		}

		chunkID := fmt.Sprintf("%s_chunk_%d", doc.DocumentID, chunk.ChunkIndex)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (chunk_id, document_id, user_id, file_name, chunk_index, text, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, chunkID, doc.DocumentID, doc.UserID, chunk.FileName, chunk.ChunkIndex, chunk.Text, string(embeddingJSON), chunk.Timestamp.Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit save: %w", err)
	}

	logger.Debug("Document saved locally",
		zap.String("document_id", doc.DocumentID),
		zap.Int("chunks", len(doc.Chunks)),
	)

	return &storage.SaveResult{
		DocumentID:  doc.DocumentID,
		ChunksSaved: len(doc.Chunks),
		Storage:     storage.LocationLocal,
	}, nil
}

func (c *Client) Retrieve(ctx context.Context, userID, documentID string) ([]storage.Chunk, []storage.DocumentMeta, error) {
	metas, err := c.queryMetas(ctx, userID, documentID)
	if err != nil {
		return nil, nil, err
	}
	if documentID != "" && len(metas) == 0 {
		return nil, nil, fmt.Errorf("document %s: %w", documentID, storage.ErrDocumentNotFound)
	}

	query := `SELECT file_name, chunk_index, text, embedding, created_at FROM chunks WHERE user_id = ?`
	args := []interface{}{userID}
	if documentID != "" {
		query += ` AND document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY file_name, chunk_index`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []storage.Chunk
	for rows.Next() {
		var chunk storage.Chunk
		var embeddingJSON string
		var createdAt int64

		if err := rows.Scan(&chunk.FileName, &chunk.ChunkIndex, &chunk.Text, &embeddingJSON, &createdAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		if err := json.Unmarshal([]byte(embeddingJSON), &chunk.Embedding); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
		chunk.Timestamp = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	return chunks, metas, nil
}

func (c *Client) queryMetas(ctx context.Context, userID, documentID string) ([]storage.DocumentMeta, error) {
	query := `SELECT document_id, file_name, chunks_processed, uploaded_at FROM documents WHERE user_id = ?`
	args := []interface{}{userID}
	if documentID != "" {
		query += ` AND document_id = ?`
		args = append(args, documentID)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var metas []storage.DocumentMeta
	for rows.Next() {
		var meta storage.DocumentMeta
		var uploadedAt int64
		if err := rows.Scan(&meta.DocumentID, &meta.FileName, &meta.ChunksProcessed, &uploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		meta.UploadedAt = time.Unix(uploadedAt, 0)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func (c *Client) Delete(ctx context.Context, userID, fileName string) (*storage.DeleteResult, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE user_id = ? AND file_name = ?`, userID, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to delete chunks: %w", err)
	}
	chunksDeleted, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE user_id = ? AND file_name = ?`, userID, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	docsDeleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	logger.Debug("Document deleted locally",
		zap.String("file_name", fileName),
		zap.Int64("chunks_deleted", chunksDeleted),
	)

	return &storage.DeleteResult{
		ChunksDeleted:    int(chunksDeleted),
		DocumentsDeleted: int(docsDeleted),
	}, nil
}

func (c *Client) Purge(ctx context.Context, userID string) (*storage.DeleteResult, error) {
	chunkQuery := `DELETE FROM chunks`
	docQuery := `DELETE FROM documents`
	var args []interface{}
	if userID != "" {
		chunkQuery += ` WHERE user_id = ?`
		docQuery += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, chunkQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to purge chunks: %w", err)
	}
	chunksDeleted, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, docQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to purge documents: %w", err)
	}
	docsDeleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purge: %w", err)
	}

	logger.Info("Local storage purged",
		zap.String("user_id", userID),
		zap.Int64("chunks_deleted", chunksDeleted),
		zap.Int64("documents_deleted", docsDeleted),
	)

	return &storage.DeleteResult{
		ChunksDeleted:    int(chunksDeleted),
		DocumentsDeleted: int(docsDeleted),
	}, nil
}

func (c *Client) Stats(ctx context.Context, userID string) (*storage.UsageStats, error) {
	var stats storage.UsageStats

	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE user_id = ?`, userID).Scan(&stats.Documents)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE user_id = ?`, userID).Scan(&stats.Chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	return &stats, nil
}

func (c *Client) LoadMode() (storage.Mode, bool, error) {
	var value string
	err := c.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, modeSettingKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load storage mode: %w", err)
	}

	mode, err := storage.ParseMode(value)
	if err != nil {
		return "", false, err
	}
	return mode, true, nil
}

func (c *Client) StoreMode(mode storage.Mode) error {
	_, err := c.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, modeSettingKey, string(mode))
	if err != nil {
		return fmt.Errorf("failed to persist storage mode: %w", err)
	}
	return nil
}
