package dispatch

import (
	"context"
	"fmt"

	"github.com/formsnapper/backend/internal/analysis"
	"github.com/formsnapper/backend/internal/kb"
	"github.com/formsnapper/backend/internal/storage"
)

// Command is the sealed set of operations the engine accepts. The private
// marker keeps the union closed: new commands are added here, and the
// Dispatch type switch is the single place that handles them.
type Command interface {
	isCommand()
}

type AnalyzeForm struct {
	UserID             string
	URL                string
	PageContent        string
	KnowledgeBase      string
	CustomInstructions string
	PageContext        map[string]string
	Progress           analysis.ProgressFunc
}

type EmbedDocument struct {
	UserID   string
	FileName string
	Content  string
}

type SearchKnowledgeBase struct {
	UserID string
	Query  string
}

type GetStorageMode struct {
	UserID string
}

type SetStorageMode struct {
	UserID string
	Mode   storage.Mode
}

type DeleteEmbeddings struct {
	UserID   string
	FileName string
}

func (AnalyzeForm) isCommand()         {}
func (EmbedDocument) isCommand()       {}
func (SearchKnowledgeBase) isCommand() {}
func (GetStorageMode) isCommand()      {}
func (SetStorageMode) isCommand()      {}
func (DeleteEmbeddings) isCommand()    {}

type AnalyzeFormResponse struct {
	Success      bool                       `json:"success"`
	Fields       []analysis.FieldDescriptor `json:"fields"`
	FormPurpose  string                     `json:"formPurpose"`
	SubmitButton string                     `json:"submitButton,omitempty"`
	Tier         int                        `json:"tier"`
	Mode         string                     `json:"mode"`
	Confidence   float64                    `json:"confidence,omitempty"`
}

type EmbedDocumentResponse struct {
	Success           bool   `json:"success"`
	DocumentID        string `json:"documentId"`
	ChunksEmbedded    int    `json:"chunksEmbedded"`
	DuplicatesSkipped int    `json:"duplicatesSkipped"`
	ChunksFailed      int    `json:"chunksFailed"`
	IsOverwrite       bool   `json:"isOverwrite"`
	Storage           string `json:"storage"`
}

type SearchResponse struct {
	Success bool              `json:"success"`
	Results []kb.SearchResult `json:"results"`
}

type StorageModeResponse struct {
	Mode  string              `json:"mode"`
	Usage *storage.UsageStats `json:"usage,omitempty"`
}

type SetStorageModeResponse struct {
	Success bool   `json:"success"`
	Mode    string `json:"mode"`
}

type DeleteEmbeddingsResponse struct {
	Success       bool   `json:"success"`
	FileName      string `json:"fileName"`
	ChunksDeleted int    `json:"chunksDeleted"`
}

// Dispatcher routes commands to the engine components.
type Dispatcher struct {
	orchestrator *analysis.Orchestrator
	ingestor     *kb.Ingestor
	manager      *storage.Manager
}

func NewDispatcher(orchestrator *analysis.Orchestrator, ingestor *kb.Ingestor, manager *storage.Manager) *Dispatcher {
	return &Dispatcher{
		orchestrator: orchestrator,
		ingestor:     ingestor,
		manager:      manager,
	}
}

// Dispatch executes one command and returns its typed response. The type
// switch is exhaustive over the sealed union; an unknown command is a
// programming error, not a client error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (any, error) {
	switch c := cmd.(type) {
	case AnalyzeForm:
		return d.analyzeForm(ctx, c)
	case EmbedDocument:
		return d.embedDocument(ctx, c)
	case SearchKnowledgeBase:
		return d.search(ctx, c)
	case GetStorageMode:
		return d.getStorageMode(ctx, c)
	case SetStorageMode:
		return d.setStorageMode(ctx, c)
	case DeleteEmbeddings:
		return d.deleteEmbeddings(ctx, c)
	default:
		return nil, fmt.Errorf("unhandled command type %T", cmd)
	}
}

func (d *Dispatcher) analyzeForm(ctx context.Context, c AnalyzeForm) (*AnalyzeFormResponse, error) {
	result := d.orchestrator.Analyze(ctx, analysis.Request{
		URL:                c.URL,
		PageContent:        c.PageContent,
		KnowledgeBase:      c.KnowledgeBase,
		CustomInstructions: c.CustomInstructions,
		PageContext:        c.PageContext,
	}, c.Progress)

	return &AnalyzeFormResponse{
		Success:      true,
		Fields:       result.Fields,
		FormPurpose:  result.FormPurpose,
		SubmitButton: result.SubmitButton,
		Tier:         int(result.Tier),
		Mode:         result.Mode,
		Confidence:   result.Confidence,
	}, nil
}

func (d *Dispatcher) embedDocument(ctx context.Context, c EmbedDocument) (*EmbedDocumentResponse, error) {
	result, err := d.ingestor.EmbedDocument(ctx, c.UserID, c.FileName, c.Content)
	if err != nil {
		return nil, err
	}

	return &EmbedDocumentResponse{
		Success:           true,
		DocumentID:        result.DocumentID,
		ChunksEmbedded:    result.ChunksEmbedded,
		DuplicatesSkipped: result.DuplicatesSkipped,
		ChunksFailed:      result.ChunksFailed,
		IsOverwrite:       result.IsOverwrite,
		Storage:           string(result.Storage),
	}, nil
}

func (d *Dispatcher) search(ctx context.Context, c SearchKnowledgeBase) (*SearchResponse, error) {
	results, err := d.ingestor.Search(ctx, c.UserID, c.Query)
	if err != nil {
		return nil, err
	}

	if results == nil {
		results = []kb.SearchResult{}
	}
	return &SearchResponse{Success: true, Results: results}, nil
}

func (d *Dispatcher) getStorageMode(ctx context.Context, c GetStorageMode) (*StorageModeResponse, error) {
	usage, err := d.manager.Usage(ctx, c.UserID)
	if err != nil {
		return nil, err
	}

	return &StorageModeResponse{
		Mode:  string(d.manager.Mode()),
		Usage: usage,
	}, nil
}

func (d *Dispatcher) setStorageMode(ctx context.Context, c SetStorageMode) (*SetStorageModeResponse, error) {
	if err := d.manager.SetMode(ctx, c.Mode, c.UserID); err != nil {
		return nil, err
	}

	return &SetStorageModeResponse{Success: true, Mode: string(c.Mode)}, nil
}

func (d *Dispatcher) deleteEmbeddings(ctx context.Context, c DeleteEmbeddings) (*DeleteEmbeddingsResponse, error) {
	result, err := d.manager.Delete(ctx, c.UserID, c.FileName)
	if err != nil {
		return nil, err
	}

	return &DeleteEmbeddingsResponse{
		Success:       true,
		FileName:      c.FileName,
		ChunksDeleted: result.ChunksDeleted,
	}, nil
}
