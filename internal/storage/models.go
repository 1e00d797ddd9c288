package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNoChunks         = errors.New("document has no chunks")
)

// Mode selects which backend is authoritative. Exactly one is active at a
// time; switching triggers migration of the old backend's data.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeRemote:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid storage mode %q", s)
	}
}

// Location reports where an operation actually landed, which may differ from
// the active mode when a remote failure fell back to local.
type Location string

const (
	LocationLocal  Location = "local"
	LocationRemote Location = "cloud"
)

// Chunk is an immutable bounded slice of a document paired with its
// embedding. Re-ingestion supersedes chunks, it never mutates them.
type Chunk struct {
	FileName   string    `json:"fileName"`
	ChunkIndex int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
	Timestamp  time.Time `json:"timestamp"`
}

// DocumentMeta is the metadata record co-located with a document's chunks.
type DocumentMeta struct {
	DocumentID      string    `json:"documentId"`
	FileName        string    `json:"fileName"`
	ChunksProcessed int       `json:"chunksProcessed"`
	UploadedAt      time.Time `json:"uploadedAt"`
}

// Document is the unit of persistence: a chunk array plus its metadata
// record, addressed by {userID}/{documentID}.
type Document struct {
	UserID     string
	DocumentID string
	FileName   string
	Chunks     []Chunk
	Meta       DocumentMeta
}

type SaveResult struct {
	DocumentID  string
	ChunksSaved int
	Storage     Location
}

type DeleteResult struct {
	ChunksDeleted    int
	DocumentsDeleted int
}

type UsageStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}
