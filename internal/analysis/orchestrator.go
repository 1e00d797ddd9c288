package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/inference"
	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/internal/tokens"
	"github.com/formsnapper/backend/pkg/logger"
)

// Orchestrator drives the tier cascade. Tier 1 runs the hybrid two-stage
// analyzer; Tier 2 splits manually on the whole-page token estimate and
// calls one engine directly; Tier 3 parses the DOM deterministically. The
// cascade is one-directional: a request either completes in the tier it
// reaches or falls to the next, never back up.
type Orchestrator struct {
	analyzer        *TwoStageAnalyzer
	hybrid          *inference.HybridClient
	onDevice        inference.Provider
	cloud           inference.Provider
	extractor       FieldExtractor
	threshold       int
	tier3Confidence float64
}

type OrchestratorConfig struct {
	TokenThreshold  int
	Tier3Confidence float64
}

func NewOrchestrator(
	analyzer *TwoStageAnalyzer,
	hybrid *inference.HybridClient,
	onDevice, cloud inference.Provider,
	extractor FieldExtractor,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.TokenThreshold <= 0 {
		cfg.TokenThreshold = tokens.DefaultThreshold
	}
	if cfg.Tier3Confidence <= 0 {
		cfg.Tier3Confidence = 0.85
	}
	return &Orchestrator{
		analyzer:        analyzer,
		hybrid:          hybrid,
		onDevice:        onDevice,
		cloud:           cloud,
		extractor:       extractor,
		threshold:       cfg.TokenThreshold,
		tier3Confidence: cfg.Tier3Confidence,
	}
}

// Analyze works through the tiers until one produces a result. It never
// returns an error: Tier 3 is deterministic and always answers, possibly
// with an empty field list.
func (o *Orchestrator) Analyze(ctx context.Context, req Request, progress ProgressFunc) *Result {
	if o.hybrid != nil && o.hybrid.Ready() {
		emit(progress, "tier_started", map[string]any{"tier": int(TierHybrid)})

		result, err := o.runTimed(TierHybrid, func() (*Result, error) {
			return o.analyzer.Analyze(ctx, req, progress)
		})
		if err == nil {
			emit(progress, "analysis_completed", map[string]any{"tier": int(TierHybrid)})
			return result
		}

		logger.Warn("Hybrid analysis failed, falling back",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		metrics.TierFallbacks.WithLabelValues("1").Inc()
		emit(progress, "tier_fallback", map[string]any{"from_tier": 1, "reason": err.Error()})
	}

	if result := o.runManualSplit(ctx, req, progress); result != nil {
		emit(progress, "analysis_completed", map[string]any{"tier": int(TierManualSplit)})
		return result
	}

	emit(progress, "tier_started", map[string]any{"tier": int(TierDeterministic)})
	result := o.runDeterministic(req)
	emit(progress, "analysis_completed", map[string]any{"tier": int(TierDeterministic)})
	return result
}

// runManualSplit is Tier 2: one single-stage prompt against the engine the
// whole-page estimate calls for. Returns nil when the tier cannot run or
// fails, which sends the request to Tier 3.
func (o *Orchestrator) runManualSplit(ctx context.Context, req Request, progress ProgressFunc) *Result {
	emit(progress, "tier_started", map[string]any{"tier": int(TierManualSplit)})

	prompt := singlePassPrompt(req, req.PageContent)
	estimated := tokens.Estimate(prompt)
	mode := tokens.ChooseMode(estimated, o.threshold)

	var engine inference.Provider
	if mode == tokens.ModeCloudOnly {
		// A large form with no credential has nowhere to go but Tier 3.
		if o.cloud == nil || !o.cloud.Available() {
			o.recordFallback(progress, "cloud engine unavailable")
			return nil
		}
		engine = o.cloud
	} else {
		engine = o.onDevice
		if engine == nil || !engine.Available() {
			o.recordFallback(progress, "on-device engine unavailable")
			return nil
		}
	}

	result, err := o.runTimed(TierManualSplit, func() (*Result, error) {
		raw, err := engine.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}

		parsed := inference.Parse[singlePassOutput](raw, singlePassSchema)
		if !parsed.Ok {
			return nil, ErrMalformedResponse
		}

		fields := parsed.Value.Fields
		for i := range fields {
			if fields[i].Value == "" {
				fields[i].Value = ValueUnanswerable
			}
		}

		return &Result{
			Fields:       fields,
			FormPurpose:  parsed.Value.FormPurpose,
			SubmitButton: parsed.Value.SubmitButton,
			Tier:         TierManualSplit,
			Mode:         engine.Name(),
		}, nil
	})
	if err != nil {
		logger.Warn("Manual split analysis failed, falling back",
			zap.String("engine", engine.Name()),
			zap.Error(err),
		)
		o.recordFallback(progress, fmt.Sprintf("%s engine: %s", engine.Name(), err))
		return nil
	}

	return result
}

// runDeterministic is Tier 3: attribute and label extraction from the DOM.
// No model, no values, fixed confidence.
func (o *Orchestrator) runDeterministic(req Request) *Result {
	start := time.Now()
	fields, submitButton := o.extractor.ExtractFields(req.PageContent)
	o.observe(TierDeterministic, "success", start)

	logger.Info("Deterministic extraction completed",
		zap.String("url", req.URL),
		zap.Int("fields", len(fields)),
	)

	return &Result{
		Fields:       fields,
		SubmitButton: submitButton,
		Tier:         TierDeterministic,
		Mode:         "none",
		Confidence:   o.tier3Confidence,
	}
}

func (o *Orchestrator) runTimed(tier Tier, fn func() (*Result, error)) (*Result, error) {
	start := time.Now()
	result, err := fn()
	if err != nil {
		o.observe(tier, "error", start)
		return nil, err
	}
	o.observe(tier, "success", start)
	return result, nil
}

func (o *Orchestrator) observe(tier Tier, status string, start time.Time) {
	label := fmt.Sprintf("%d", int(tier))
	metrics.AnalysisDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	metrics.AnalysisTotal.WithLabelValues(label, status).Inc()
}

func (o *Orchestrator) recordFallback(progress ProgressFunc, reason string) {
	metrics.TierFallbacks.WithLabelValues("2").Inc()
	emit(progress, "tier_fallback", map[string]any{"from_tier": 2, "reason": reason})
}
