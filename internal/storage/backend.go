package storage

import "context"

// Backend is the uniform save/retrieve/delete contract both persistence
// implementations satisfy.
type Backend interface {
	Location() Location

	// Save persists a document's chunk array and metadata record. The
	// document must carry at least one chunk.
	Save(ctx context.Context, doc *Document) (*SaveResult, error)

	// Retrieve returns chunks and metadata for one document, or for every
	// document of the user when documentID is empty. A named but missing
	// document is ErrDocumentNotFound; an empty store is a successful empty
	// result.
	Retrieve(ctx context.Context, userID, documentID string) ([]Chunk, []DocumentMeta, error)

	// Delete removes every record for the named file.
	Delete(ctx context.Context, userID, fileName string) (*DeleteResult, error)

	// Purge removes every document for the user. Used by mode-switch
	// migration. The local backend additionally accepts an empty userID to
	// clear the whole store; the remote backend rejects it.
	Purge(ctx context.Context, userID string) (*DeleteResult, error)

	// Stats reports document and chunk counts for the user.
	Stats(ctx context.Context, userID string) (*UsageStats, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ModeStore persists the authoritative storage mode across sessions.
type ModeStore interface {
	LoadMode() (Mode, bool, error)
	StoreMode(Mode) error
}
