package kb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsnapper/backend/internal/storage"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	failOn  map[string]bool
	calls   []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.failOn[text] {
		return nil, errors.New("embedding provider unavailable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

type fakeStore struct {
	chunks      []storage.Chunk
	metas       []storage.DocumentMeta
	saved       []*storage.Document
	retrieveErr error
	saveErr     error
	deleteErr   error
}

func (f *fakeStore) Save(_ context.Context, doc *storage.Document) (*storage.SaveResult, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, doc)
	f.chunks = append(f.chunks, doc.Chunks...)
	f.metas = append(f.metas, doc.Meta)
	return &storage.SaveResult{
		DocumentID:  doc.DocumentID,
		ChunksSaved: len(doc.Chunks),
		Storage:     storage.LocationLocal,
	}, nil
}

func (f *fakeStore) Retrieve(_ context.Context, _, _ string) ([]storage.Chunk, []storage.DocumentMeta, error) {
	if f.retrieveErr != nil {
		return nil, nil, f.retrieveErr
	}
	return f.chunks, f.metas, nil
}

func (f *fakeStore) Delete(_ context.Context, _, fileName string) (*storage.DeleteResult, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	var kept []storage.Chunk
	removed := 0
	for _, c := range f.chunks {
		if c.FileName == fileName {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	f.chunks = kept

	var keptMetas []storage.DocumentMeta
	for _, m := range f.metas {
		if m.FileName != fileName {
			keptMetas = append(keptMetas, m)
		}
	}
	f.metas = keptMetas

	return &storage.DeleteResult{ChunksDeleted: removed, DocumentsDeleted: 1}, nil
}

func newTestIngestor(embedder *fakeEmbedder, store *fakeStore) *Ingestor {
	return NewIngestor(embedder, store, Config{
		ChunkMaxChars:  500,
		DedupThreshold: 0.95,
	})
}

func TestEmbedDocumentFreshUpload(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"First sentence here.":  {1, 0, 0},
		"Second sentence here.": {0, 1, 0},
	}}
	store := &fakeStore{}
	ingestor := newTestIngestor(embedder, store)

	result, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt",
		"First sentence here. Second sentence here.")
	require.NoError(t, err)

	assert.False(t, result.IsOverwrite)
	assert.Equal(t, 1, result.ChunksEmbedded)
	assert.Zero(t, result.DuplicatesSkipped)
	assert.Zero(t, result.ChunksFailed)
	assert.NotEmpty(t, result.DocumentID)
	assert.Equal(t, storage.LocationLocal, result.Storage)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "notes.txt", store.saved[0].FileName)
	assert.Equal(t, "user-1", store.saved[0].UserID)
}

func TestEmbedDocumentStableDocumentID(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	ingestor := newTestIngestor(embedder, store)

	first, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Alpha.")
	require.NoError(t, err)

	second, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Beta.")
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)

	other, err := ingestor.EmbedDocument(context.Background(), "user-2", "notes.txt", "Alpha.")
	require.NoError(t, err)
	assert.NotEqual(t, first.DocumentID, other.DocumentID)
}

func TestEmbedDocumentOverwriteReplacesPriorChunks(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Old content lives here.": {1, 0, 0},
		"New content lives here.": {0, 1, 0},
	}}
	store := &fakeStore{}
	ingestor := newTestIngestor(embedder, store)

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Old content lives here.")
	require.NoError(t, err)

	result, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "New content lives here.")
	require.NoError(t, err)

	assert.True(t, result.IsOverwrite)
	assert.Equal(t, 1, result.ChunksEmbedded)
	// Never both versions at once.
	require.Len(t, store.chunks, 1)
	assert.Equal(t, "New content lives here.", store.chunks[0].Text)
}

func TestEmbedDocumentOverwriteSkipsDedup(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Identical content.": {1, 0, 0},
	}}
	store := &fakeStore{}
	ingestor := newTestIngestor(embedder, store)

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Identical content.")
	require.NoError(t, err)

	result, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Identical content.")
	require.NoError(t, err)

	assert.True(t, result.IsOverwrite)
	assert.Equal(t, 1, result.ChunksEmbedded)
	assert.Zero(t, result.DuplicatesSkipped)
}

func TestEmbedDocumentDedupAgainstOtherFiles(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Shared paragraph.": {1, 0, 0},
		"Fresh paragraph.":  {0, 1, 0},
	}}
	store := &fakeStore{}
	ingestor := NewIngestor(embedder, store, Config{ChunkMaxChars: 20, DedupThreshold: 0.95})

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "a.txt", "Shared paragraph.")
	require.NoError(t, err)

	result, err := ingestor.EmbedDocument(context.Background(), "user-1", "b.txt",
		"Shared paragraph. Fresh paragraph.")
	require.NoError(t, err)

	assert.False(t, result.IsOverwrite)
	assert.Equal(t, 1, result.ChunksEmbedded)
	assert.Equal(t, 1, result.DuplicatesSkipped)

	// Only the novel chunk landed under b.txt.
	var bTexts []string
	for _, c := range store.chunks {
		if c.FileName == "b.txt" {
			bTexts = append(bTexts, c.Text)
		}
	}
	assert.Equal(t, []string{"Fresh paragraph."}, bTexts)
}

func TestEmbedDocumentAllDuplicatesStillSucceeds(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Shared paragraph.": {1, 0, 0},
	}}
	store := &fakeStore{}
	ingestor := newTestIngestor(embedder, store)

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "a.txt", "Shared paragraph.")
	require.NoError(t, err)

	result, err := ingestor.EmbedDocument(context.Background(), "user-1", "b.txt", "Shared paragraph.")
	require.NoError(t, err)

	assert.Zero(t, result.ChunksEmbedded)
	assert.Equal(t, 1, result.DuplicatesSkipped)
	// Nothing new written for b.txt.
	require.Len(t, store.saved, 1)
}

func TestEmbedDocumentPartialEmbedFailure(t *testing.T) {
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"Good chunk one.":   {1, 0, 0},
			"Good chunk three.": {0, 1, 0},
		},
		failOn: map[string]bool{"Bad chunk two.": true},
	}
	store := &fakeStore{}
	ingestor := NewIngestor(embedder, store, Config{ChunkMaxChars: 20, DedupThreshold: 0.95})

	result, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt",
		"Good chunk one. Bad chunk two. Good chunk three.")
	require.NoError(t, err)

	assert.Equal(t, 1, result.ChunksFailed)
	assert.Equal(t, 2, result.ChunksEmbedded)
	// Later chunks still processed after a failure.
	assert.Contains(t, embedder.calls, "Good chunk three.")
}

func TestEmbedDocumentAllEmbedsFailed(t *testing.T) {
	embedder := &fakeEmbedder{failOn: map[string]bool{"Only chunk.": true}}
	store := &fakeStore{}
	ingestor := newTestIngestor(embedder, store)

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Only chunk.")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoChunksEmbedded)
	assert.Empty(t, store.saved)
}

func TestEmbedDocumentEmptyContent(t *testing.T) {
	ingestor := newTestIngestor(&fakeEmbedder{}, &fakeStore{})

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "empty.txt", "   ")
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestEmbedDocumentRetrieveFailureAborts(t *testing.T) {
	store := &fakeStore{retrieveErr: errors.New("storage offline")}
	ingestor := newTestIngestor(&fakeEmbedder{}, store)

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Content.")
	require.Error(t, err)
	assert.Empty(t, store.saved)
}

func TestEmbedDocumentDeleteFailureAbortsOverwrite(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	ingestor := newTestIngestor(embedder, store)

	_, err := ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Original.")
	require.NoError(t, err)

	store.deleteErr = errors.New("delete refused")
	_, err = ingestor.EmbedDocument(context.Background(), "user-1", "notes.txt", "Replacement.")
	require.Error(t, err)

	// Prior chunks untouched.
	require.Len(t, store.chunks, 1)
	assert.Equal(t, "Original.", store.chunks[0].Text)
}
