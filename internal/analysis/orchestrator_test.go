package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsnapper/backend/internal/inference"
)

const singlePassJSON = `{
	"formPurpose": "Newsletter signup",
	"submitButton": "Subscribe",
	"fields": [
		{"selector": "#email", "type": "email", "label": "Email", "required": true, "value": "jane@example.com"},
		{"selector": "#name", "type": "text", "label": "Name", "required": false, "value": ""}
	]
}`

type fakeExtractor struct {
	fields []FieldDescriptor
	submit string
}

func (f *fakeExtractor) ExtractFields(_ string) ([]FieldDescriptor, string) {
	return f.fields, f.submit
}

func newOrchestrator(hybridProvider, tier2Device, tier2Cloud *scriptedProvider, extractor FieldExtractor) *Orchestrator {
	var hybrid *inference.HybridClient
	var analyzer *TwoStageAnalyzer
	if hybridProvider != nil {
		hybrid = inference.NewHybridClient(hybridProvider, nil, 6000)
		analyzer = NewTwoStageAnalyzer(hybrid, passthroughSanitizer{})
	}

	var onDevice, cloud inference.Provider
	if tier2Device != nil {
		onDevice = tier2Device
	}
	if tier2Cloud != nil {
		cloud = tier2Cloud
	}

	return NewOrchestrator(analyzer, hybrid, onDevice, cloud, extractor, OrchestratorConfig{
		TokenThreshold:  6000,
		Tier3Confidence: 0.85,
	})
}

func TestOrchestratorTier1Success(t *testing.T) {
	hybridProvider := &scriptedProvider{
		name:      "on-device",
		available: true,
		responses: []string{structureJSON, valuesJSON},
	}
	orch := newOrchestrator(hybridProvider, nil, nil, &fakeExtractor{})

	result := orch.Analyze(context.Background(), Request{PageContent: "<form></form>"}, nil)
	require.NotNil(t, result)
	assert.Equal(t, TierHybrid, result.Tier)
	assert.Len(t, result.Fields, 3)
}

func TestOrchestratorTier1FailureNeverReportsTier1(t *testing.T) {
	hybridProvider := &scriptedProvider{
		name:      "on-device",
		available: true,
		errs:      []error{errors.New("crash"), errors.New("crash"), errors.New("crash")},
	}
	tier2Device := &scriptedProvider{
		name:      "on-device",
		available: true,
		responses: []string{singlePassJSON},
	}
	orch := newOrchestrator(hybridProvider, tier2Device, nil, &fakeExtractor{})

	result := orch.Analyze(context.Background(), Request{PageContent: "<form></form>"}, nil)
	require.NotNil(t, result)
	assert.NotEqual(t, TierHybrid, result.Tier)
	assert.Equal(t, TierManualSplit, result.Tier)
	assert.Equal(t, "Newsletter signup", result.FormPurpose)

	// Tier 2 fills the sentinel for unanswered fields.
	require.Len(t, result.Fields, 2)
	assert.Equal(t, "jane@example.com", result.Fields[0].Value)
	assert.Equal(t, ValueUnanswerable, result.Fields[1].Value)
}

func TestOrchestratorTier2LargeFormUsesCloud(t *testing.T) {
	tier2Cloud := &scriptedProvider{
		name:      "cloud",
		available: true,
		responses: []string{singlePassJSON},
	}
	tier2Device := &scriptedProvider{name: "on-device", available: true}
	orch := newOrchestrator(nil, tier2Device, tier2Cloud, &fakeExtractor{})

	large := strings.Repeat("x", 30000)
	result := orch.Analyze(context.Background(), Request{PageContent: large}, nil)
	require.NotNil(t, result)
	assert.Equal(t, TierManualSplit, result.Tier)
	assert.Equal(t, "cloud", result.Mode)
	assert.Zero(t, len(tier2Device.prompts))
}

func TestOrchestratorLargeFormWithoutCredentialSkipsToTier3(t *testing.T) {
	tier2Device := &scriptedProvider{name: "on-device", available: true}
	extractor := &fakeExtractor{
		fields: []FieldDescriptor{{Selector: "#q", Type: "text", Label: "Query"}},
		submit: "Go",
	}
	orch := newOrchestrator(nil, tier2Device, nil, extractor)

	large := strings.Repeat("x", 30000)
	result := orch.Analyze(context.Background(), Request{PageContent: large}, nil)
	require.NotNil(t, result)
	assert.Equal(t, TierDeterministic, result.Tier)
	// The on-device engine is never consulted for an over-budget page.
	assert.Empty(t, tier2Device.prompts)
}

func TestOrchestratorTier3AlwaysAnswers(t *testing.T) {
	hybridProvider := &scriptedProvider{
		name:      "on-device",
		available: true,
		errs:      []error{errors.New("crash"), errors.New("crash"), errors.New("crash")},
	}
	tier2Device := &scriptedProvider{
		name:      "on-device",
		available: true,
		errs:      []error{errors.New("crash")},
	}
	extractor := &fakeExtractor{
		fields: []FieldDescriptor{{Selector: "#email", Type: "email", Label: "Email"}},
		submit: "Subscribe",
	}
	orch := newOrchestrator(hybridProvider, tier2Device, nil, extractor)

	result := orch.Analyze(context.Background(), Request{PageContent: "<form></form>"}, nil)
	require.NotNil(t, result)
	assert.Equal(t, TierDeterministic, result.Tier)
	assert.Equal(t, "none", result.Mode)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
	assert.Equal(t, "Subscribe", result.SubmitButton)
	// Tier 3 reports structure only.
	require.Len(t, result.Fields, 1)
	assert.Empty(t, result.Fields[0].Value)
}

func TestOrchestratorTier3EmptyPage(t *testing.T) {
	orch := newOrchestrator(nil, nil, nil, &fakeExtractor{})

	result := orch.Analyze(context.Background(), Request{PageContent: ""}, nil)
	require.NotNil(t, result)
	assert.Equal(t, TierDeterministic, result.Tier)
	assert.Empty(t, result.Fields)
}

func TestOrchestratorMalformedTier2FallsThrough(t *testing.T) {
	tier2Device := &scriptedProvider{
		name:      "on-device",
		available: true,
		responses: []string{"no json here"},
	}
	orch := newOrchestrator(nil, tier2Device, nil, &fakeExtractor{})

	result := orch.Analyze(context.Background(), Request{PageContent: "<form></form>"}, nil)
	require.NotNil(t, result)
	assert.Equal(t, TierDeterministic, result.Tier)
}

func TestOrchestratorProgressReportsFallbacks(t *testing.T) {
	hybridProvider := &scriptedProvider{
		name:      "on-device",
		available: true,
		errs:      []error{errors.New("crash"), errors.New("crash")},
	}
	tier2Device := &scriptedProvider{
		name:      "on-device",
		available: true,
		errs:      []error{errors.New("crash")},
	}
	orch := newOrchestrator(hybridProvider, tier2Device, nil, &fakeExtractor{})

	var events []string
	orch.Analyze(context.Background(), Request{PageContent: "<form></form>"},
		func(event string, _ map[string]any) {
			events = append(events, event)
		})

	assert.Equal(t, []string{
		"tier_started", "tier_fallback",
		"tier_started", "tier_fallback",
		"tier_started", "analysis_completed",
	}, events)
}
