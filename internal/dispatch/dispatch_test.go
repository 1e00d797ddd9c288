package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsnapper/backend/internal/analysis"
	"github.com/formsnapper/backend/internal/domparser"
	"github.com/formsnapper/backend/internal/kb"
	"github.com/formsnapper/backend/internal/storage"
)

type memoryBackend struct {
	location storage.Location
	docs     map[string]*storage.Document
}

func newMemoryBackend(location storage.Location) *memoryBackend {
	return &memoryBackend{location: location, docs: map[string]*storage.Document{}}
}

func (m *memoryBackend) Location() storage.Location { return m.location }

func (m *memoryBackend) Ping(_ context.Context) error { return nil }

func (m *memoryBackend) Save(_ context.Context, doc *storage.Document) (*storage.SaveResult, error) {
	m.docs[doc.DocumentID] = doc
	return &storage.SaveResult{DocumentID: doc.DocumentID, ChunksSaved: len(doc.Chunks), Storage: m.location}, nil
}

func (m *memoryBackend) Retrieve(_ context.Context, _, documentID string) ([]storage.Chunk, []storage.DocumentMeta, error) {
	if documentID != "" {
		doc, ok := m.docs[documentID]
		if !ok {
			return nil, nil, storage.ErrDocumentNotFound
		}
		return doc.Chunks, []storage.DocumentMeta{doc.Meta}, nil
	}

	var chunks []storage.Chunk
	var metas []storage.DocumentMeta
	for _, doc := range m.docs {
		chunks = append(chunks, doc.Chunks...)
		metas = append(metas, doc.Meta)
	}
	return chunks, metas, nil
}

func (m *memoryBackend) Delete(_ context.Context, _, fileName string) (*storage.DeleteResult, error) {
	deleted := 0
	docs := 0
	for id, doc := range m.docs {
		if doc.FileName == fileName {
			deleted += len(doc.Chunks)
			docs++
			delete(m.docs, id)
		}
	}
	return &storage.DeleteResult{ChunksDeleted: deleted, DocumentsDeleted: docs}, nil
}

func (m *memoryBackend) Purge(_ context.Context, _ string) (*storage.DeleteResult, error) {
	deleted := 0
	for _, doc := range m.docs {
		deleted += len(doc.Chunks)
	}
	m.docs = map[string]*storage.Document{}
	return &storage.DeleteResult{ChunksDeleted: deleted}, nil
}

func (m *memoryBackend) Stats(_ context.Context, _ string) (*storage.UsageStats, error) {
	stats := &storage.UsageStats{Documents: len(m.docs)}
	for _, doc := range m.docs {
		stats.Chunks += len(doc.Chunks)
	}
	return stats, nil
}

type memoryModes struct {
	mode storage.Mode
	set  bool
}

func (m *memoryModes) LoadMode() (storage.Mode, bool, error) { return m.mode, m.set, nil }
func (m *memoryModes) StoreMode(mode storage.Mode) error {
	m.mode = mode
	m.set = true
	return nil
}

type constantEmbedder struct{}

func (constantEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r)
	}
	return v, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *memoryBackend) {
	t.Helper()

	local := newMemoryBackend(storage.LocationLocal)
	manager, err := storage.NewManager(local, nil, &memoryModes{}, storage.ModeLocal)
	require.NoError(t, err)

	ingestor := kb.NewIngestor(constantEmbedder{}, manager, kb.Config{
		ChunkMaxChars:       500,
		DedupThreshold:      0.95,
		SearchMinSimilarity: 0.3,
		SearchTopK:          5,
	})

	parser := domparser.NewParser()
	analyzer := analysis.NewTwoStageAnalyzer(nil, parser)
	orchestrator := analysis.NewOrchestrator(analyzer, nil, nil, nil, parser, analysis.OrchestratorConfig{})

	return NewDispatcher(orchestrator, ingestor, manager), local
}

func TestDispatchEmbedAndSearch(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)
	ctx := context.Background()

	resp, err := dispatcher.Dispatch(ctx, EmbedDocument{
		UserID:   "user-1",
		FileName: "resume.txt",
		Content:  "Jane Doe is a software engineer with ten years of experience.",
	})
	require.NoError(t, err)

	embedResp, ok := resp.(*EmbedDocumentResponse)
	require.True(t, ok)
	assert.True(t, embedResp.Success)
	assert.Equal(t, 1, embedResp.ChunksEmbedded)
	assert.Equal(t, "local", embedResp.Storage)

	resp, err = dispatcher.Dispatch(ctx, SearchKnowledgeBase{
		UserID: "user-1",
		Query:  "Jane Doe is a software engineer with ten years of experience.",
	})
	require.NoError(t, err)

	searchResp, ok := resp.(*SearchResponse)
	require.True(t, ok)
	require.Len(t, searchResp.Results, 1)
	assert.InDelta(t, 1.0, searchResp.Results[0].Similarity, 1e-6)
}

func TestDispatchSearchEmptyStoreReturnsEmptySlice(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	resp, err := dispatcher.Dispatch(context.Background(), SearchKnowledgeBase{UserID: "user-1", Query: "anything"})
	require.NoError(t, err)

	searchResp := resp.(*SearchResponse)
	assert.True(t, searchResp.Success)
	assert.NotNil(t, searchResp.Results)
	assert.Empty(t, searchResp.Results)
}

func TestDispatchAnalyzeFallsToDeterministic(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)

	resp, err := dispatcher.Dispatch(context.Background(), AnalyzeForm{
		UserID: "user-1",
		URL:    "https://example.com/signup",
		PageContent: `<form>
			<label for="email">Email</label>
			<input id="email" type="email" required>
			<button type="submit">Sign Up</button>
		</form>`,
	})
	require.NoError(t, err)

	analyzeResp := resp.(*AnalyzeFormResponse)
	assert.True(t, analyzeResp.Success)
	assert.Equal(t, 3, analyzeResp.Tier)
	assert.InDelta(t, 0.85, analyzeResp.Confidence, 1e-9)
	require.Len(t, analyzeResp.Fields, 1)
	assert.Equal(t, "Email", analyzeResp.Fields[0].Label)
	assert.Equal(t, "Sign Up", analyzeResp.SubmitButton)
}

func TestDispatchStorageModeRoundTrip(t *testing.T) {
	dispatcher, local := newTestDispatcher(t)
	ctx := context.Background()

	local.docs["doc-1"] = &storage.Document{
		DocumentID: "doc-1",
		FileName:   "a.txt",
		Chunks:     []storage.Chunk{{FileName: "a.txt", Text: "x", Timestamp: time.Now()}},
		Meta:       storage.DocumentMeta{DocumentID: "doc-1", FileName: "a.txt", ChunksProcessed: 1},
	}

	resp, err := dispatcher.Dispatch(ctx, GetStorageMode{UserID: "user-1"})
	require.NoError(t, err)

	modeResp := resp.(*StorageModeResponse)
	assert.Equal(t, "local", modeResp.Mode)
	require.NotNil(t, modeResp.Usage)
	assert.Equal(t, 1, modeResp.Usage.Documents)
	assert.Equal(t, 1, modeResp.Usage.Chunks)

	// Remote is not configured, so switching to it is rejected.
	_, err = dispatcher.Dispatch(ctx, SetStorageMode{UserID: "user-1", Mode: storage.ModeRemote})
	assert.Error(t, err)
}

func TestDispatchDeleteEmbeddings(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)
	ctx := context.Background()

	_, err := dispatcher.Dispatch(ctx, EmbedDocument{
		UserID:   "user-1",
		FileName: "resume.txt",
		Content:  "Some content to remove later.",
	})
	require.NoError(t, err)

	resp, err := dispatcher.Dispatch(ctx, DeleteEmbeddings{UserID: "user-1", FileName: "resume.txt"})
	require.NoError(t, err)

	deleteResp := resp.(*DeleteEmbeddingsResponse)
	assert.True(t, deleteResp.Success)
	assert.Equal(t, "resume.txt", deleteResp.FileName)
	assert.Equal(t, 1, deleteResp.ChunksDeleted)
}
