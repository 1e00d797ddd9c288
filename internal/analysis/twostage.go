package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/inference"
	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/internal/tokens"
	"github.com/formsnapper/backend/pkg/logger"
)

// ErrMalformedResponse indicates a completion that could not be parsed into
// the expected structure, even after fragment salvage.
var ErrMalformedResponse = errors.New("model returned an unparseable response")

// TwoStageAnalyzer splits one analysis into a structure stage and a values
// stage so that the stage carrying the user's private context is the small
// one. Each stage computes its own token budget and is routed independently;
// Stage 2 rarely carries HTML, so it usually qualifies for on-device
// inference even when the page itself is huge.
type TwoStageAnalyzer struct {
	hybrid    *inference.HybridClient
	sanitizer Sanitizer
}

func NewTwoStageAnalyzer(hybrid *inference.HybridClient, sanitizer Sanitizer) *TwoStageAnalyzer {
	return &TwoStageAnalyzer{hybrid: hybrid, sanitizer: sanitizer}
}

// Analyze runs the two stages strictly in sequence. A Stage-1 failure fails
// the whole analysis; a Stage-2 failure surfaces without retry.
func (a *TwoStageAnalyzer) Analyze(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	structure, err := a.runStructureStage(ctx, req, progress)
	if err != nil {
		return nil, fmt.Errorf("structure stage: %w", err)
	}

	if len(structure.Fields) == 0 {
		logger.Info("No fillable fields detected", zap.String("url", req.URL))
		return &Result{
			FormPurpose:  structure.FormPurpose,
			SubmitButton: structure.SubmitButton,
			Tier:         TierHybrid,
		}, nil
	}

	values, mode, err := a.runValuesStage(ctx, req, structure.Fields, progress)
	if err != nil {
		return nil, fmt.Errorf("values stage: %w", err)
	}

	return &Result{
		Fields:       mergeValues(structure.Fields, values),
		FormPurpose:  structure.FormPurpose,
		SubmitButton: structure.SubmitButton,
		Tier:         TierHybrid,
		Mode:         mode,
	}, nil
}

func (a *TwoStageAnalyzer) runStructureStage(ctx context.Context, req Request, progress ProgressFunc) (*structureOutput, error) {
	pageContent := req.PageContent
	if a.sanitizer != nil {
		pageContent = a.sanitizer.CleanHTML(pageContent)
	}

	// Stage 1 sees the page and its context only. The knowledge base and
	// custom instructions are not reachable from StructureInput.
	prompt := structurePrompt(StructureInput{
		PageContent: pageContent,
		PageContext: req.PageContext,
	})
	metrics.StageTokens.WithLabelValues("structure").Observe(float64(tokens.Estimate(prompt)))

	raw, mode, err := a.hybrid.Run(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed := inference.Parse[structureOutput](raw, structureSchema)
	if !parsed.Ok {
		logger.Warn("Structure stage returned malformed output", zap.Int("raw_length", len(parsed.Raw)))
		return nil, ErrMalformedResponse
	}

	emit(progress, "stage_completed", map[string]any{
		"stage":  "structure",
		"mode":   mode,
		"fields": len(parsed.Value.Fields),
	})

	return &parsed.Value, nil
}

func (a *TwoStageAnalyzer) runValuesStage(ctx context.Context, req Request, fields []FieldDescriptor, progress ProgressFunc) (map[string]string, string, error) {
	prompt := valuesPrompt(ValuesInput{
		Fields:             fields,
		KnowledgeBase:      req.KnowledgeBase,
		CustomInstructions: req.CustomInstructions,
	})
	metrics.StageTokens.WithLabelValues("values").Observe(float64(tokens.Estimate(prompt)))

	raw, mode, err := a.hybrid.Run(ctx, prompt)
	if err != nil {
		return nil, "", err
	}

	parsed := inference.Parse[valuesOutput](raw, valuesSchema)
	if !parsed.Ok {
		logger.Warn("Values stage returned malformed output", zap.Int("raw_length", len(parsed.Raw)))
		return nil, "", ErrMalformedResponse
	}

	values := make(map[string]string, len(parsed.Value.Values))
	for _, v := range parsed.Value.Values {
		values[v.Label] = v.Value
	}

	emit(progress, "stage_completed", map[string]any{
		"stage":  "values",
		"mode":   mode,
		"values": len(values),
	})

	return values, mode, nil
}

// mergeValues joins Stage-2 values onto Stage-1 descriptors by exact label.
// A descriptor without a matching value gets the unanswerable sentinel.
func mergeValues(fields []FieldDescriptor, values map[string]string) []FieldDescriptor {
	merged := make([]FieldDescriptor, len(fields))
	for i, field := range fields {
		value, ok := values[field.Label]
		if !ok || value == "" {
			value = ValueUnanswerable
		}
		field.Value = value
		merged[i] = field
	}
	return merged
}

func emit(progress ProgressFunc, event string, detail map[string]any) {
	if progress != nil {
		progress(event, detail)
	}
}
