package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/contribution"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
	"github.com/supportiq/supportiq/internal/port/database"
)

// OrchestrationMetadata describes how a generation cycle executed.
type OrchestrationMetadata struct {
	CycleID                string            `json:"cycle_id"`
	CustomerID             string            `json:"customer_id"`
	GenerationTimeMS       int64             `json:"generation_time_ms"`
	Phase1ParallelTimeMS   int64             `json:"phase1_parallel_time_ms"`
	Phase2ReasoningTimeMS  int64             `json:"phase2_reasoning_time_ms"`
	Phase3ValidationTimeMS int64             `json:"phase3_validation_time_ms"`
	LatencyTargetMet       bool              `json:"latency_target_met"`
	Success                bool              `json:"success"`
	Error                  string            `json:"error,omitempty"`
	GracefulDegradation    bool              `json:"graceful_degradation,omitempty"`
	ValidationSummary      ValidationSummary `json:"validation_summary"`
}

// GenerateResult is the full output of one generation cycle, with the
// validated recommendations split back into the two surface lists.
type GenerateResult struct {
	Adoption      []recommendation.Recommendation `json:"adoption_recommendations"`
	Upsell        []recommendation.Recommendation `json:"upsell_recommendations"`
	Blocked       []BlockedRecommendation         `json:"blocked_recommendations"`
	Contributions []contribution.Contribution     `json:"agent_contributions"`
	Metadata      OrchestrationMetadata           `json:"orchestration_metadata"`
}

// ValidatedCount is the number of recommendations across both lists.
func (r *GenerateResult) ValidatedCount() int {
	return len(r.Adoption) + len(r.Upsell)
}

// Orchestrator coordinates the four-stage generation pipeline: retrieval
// and sentiment run in parallel, then reasoning, then validation. A stage
// failure degrades to an empty result rather than an error so the support
// agent UI always gets a well-formed response.
type Orchestrator struct {
	retrieval  *RetrievalAgent
	sentiment  *SentimentAgent
	reasoning  *ReasoningAgent
	validation *ValidationAgent
	store      database.Store

	latencyTarget time.Duration
	log           *slog.Logger
}

// NewOrchestrator wires the pipeline stages together. latencyTarget is the
// soft budget for a full cycle; exceeding it is logged, never fatal.
func NewOrchestrator(
	retrieval *RetrievalAgent,
	sentiment *SentimentAgent,
	reasoning *ReasoningAgent,
	validation *ValidationAgent,
	store database.Store,
	latencyTarget time.Duration,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		retrieval:     retrieval,
		sentiment:     sentiment,
		reasoning:     reasoning,
		validation:    validation,
		store:         store,
		latencyTarget: latencyTarget,
		log:           log,
	}
}

// Generate runs one recommendation cycle for the customer, analyzing the
// last days of activity against the supplied past recommendations.
// It returns an error only for invalid input; stage failures produce a
// degraded result with Success=false and empty recommendation lists.
func (o *Orchestrator) Generate(
	ctx context.Context,
	customerID string,
	days int,
	past []recommendation.Recommendation,
) (*GenerateResult, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", domain.ErrValidation)
	}

	cycleID := uuid.NewString()
	ctx, span := otel.StartCycleSpan(ctx, cycleID, customerID)
	defer span.End()

	start := time.Now()

	o.log.InfoContext(ctx, "generation cycle started",
		"cycle_id", cycleID, "customer_id", customerID, "days", days)

	// Phase 1: retrieval and sentiment in parallel.
	var (
		retrievalRes *RetrievalResult
		sentimentRes *SentimentResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := o.retrieval.Run(gctx, customerID, days)
		if err != nil {
			return fmt.Errorf("retrieval agent: %w", err)
		}
		retrievalRes = res
		return nil
	})
	g.Go(func() error {
		res, err := o.sentiment.Run(gctx, customerID, days)
		if err != nil {
			return fmt.Errorf("sentiment agent: %w", err)
		}
		sentimentRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return o.degrade(ctx, cycleID, customerID, start, err), nil
	}

	// Phase 2: reasoning.
	reasoningRes, err := o.reasoning.Run(ctx, customerID, retrievalRes, sentimentRes, past)
	if err != nil {
		return o.degrade(ctx, cycleID, customerID, start, fmt.Errorf("reasoning agent: %w", err)), nil
	}

	// Phase 3: validation.
	validationRes, err := o.validation.Run(ctx, customerID, reasoningRes, past)
	if err != nil {
		return o.degrade(ctx, cycleID, customerID, start, fmt.Errorf("validation agent: %w", err)), nil
	}

	// Phase 4: contribution records for explainability.
	contributions := buildContributions(cycleID, customerID, retrievalRes, sentimentRes, reasoningRes, validationRes)
	if err := o.store.SaveContributions(ctx, contributions); err != nil {
		// Explainability must not break generation.
		o.log.WarnContext(ctx, "failed to persist agent contributions",
			"cycle_id", cycleID, "error", err)
	}

	generationMS := time.Since(start).Milliseconds()
	targetMet := generationMS <= o.latencyTarget.Milliseconds()
	if !targetMet {
		o.log.WarnContext(ctx, "generation cycle exceeded latency target",
			"cycle_id", cycleID,
			"generation_time_ms", generationMS,
			"latency_target_ms", o.latencyTarget.Milliseconds(),
		)
	}

	phase1 := retrievalRes.ExecutionTimeMS
	if sentimentRes.ExecutionTimeMS > phase1 {
		phase1 = sentimentRes.ExecutionTimeMS
	}

	adoption, upsell := splitByType(validationRes.Validated)

	result := &GenerateResult{
		Adoption:      adoption,
		Upsell:        upsell,
		Blocked:       validationRes.Blocked,
		Contributions: contributions,
		Metadata: OrchestrationMetadata{
			CycleID:                cycleID,
			CustomerID:             customerID,
			GenerationTimeMS:       generationMS,
			Phase1ParallelTimeMS:   phase1,
			Phase2ReasoningTimeMS:  reasoningRes.ExecutionTimeMS,
			Phase3ValidationTimeMS: validationRes.ExecutionTimeMS,
			LatencyTargetMet:       targetMet,
			Success:                true,
			ValidationSummary:      validationRes.Summary,
		},
	}

	o.log.InfoContext(ctx, "generation cycle complete",
		"cycle_id", cycleID,
		"customer_id", customerID,
		"validated", result.ValidatedCount(),
		"blocked", len(result.Blocked),
		"generation_time_ms", generationMS,
		"latency_target_met", targetMet,
	)

	return result, nil
}

// degrade builds the empty, well-formed result returned when a stage fails.
func (o *Orchestrator) degrade(
	ctx context.Context,
	cycleID, customerID string,
	start time.Time,
	cause error,
) *GenerateResult {
	o.log.ErrorContext(ctx, "generation cycle degraded",
		"cycle_id", cycleID, "customer_id", customerID, "error", cause)

	return &GenerateResult{
		Adoption:      []recommendation.Recommendation{},
		Upsell:        []recommendation.Recommendation{},
		Blocked:       []BlockedRecommendation{},
		Contributions: []contribution.Contribution{},
		Metadata: OrchestrationMetadata{
			CycleID:             cycleID,
			CustomerID:          customerID,
			GenerationTimeMS:    time.Since(start).Milliseconds(),
			LatencyTargetMet:    time.Since(start) <= o.latencyTarget,
			Success:             false,
			Error:               cause.Error(),
			GracefulDegradation: true,
		},
	}
}

// splitByType partitions validated recommendations into the adoption and
// upsell surface lists, preserving order within each.
func splitByType(recs []recommendation.Recommendation) (adoption, upsell []recommendation.Recommendation) {
	adoption = []recommendation.Recommendation{}
	upsell = []recommendation.Recommendation{}
	for _, r := range recs {
		if r.Type == recommendation.TypeUpsell {
			upsell = append(upsell, r)
		} else {
			adoption = append(adoption, r)
		}
	}
	return adoption, upsell
}

// buildContributions assembles the per-stage audit records for one cycle.
func buildContributions(
	cycleID, customerID string,
	retrievalRes *RetrievalResult,
	sentimentRes *SentimentResult,
	reasoningRes *ReasoningResult,
	validationRes *ValidationResult,
) []contribution.Contribution {
	now := time.Now()
	return []contribution.Contribution{
		{
			ID:        uuid.NewString(),
			CycleID:   cycleID,
			AgentType: contribution.AgentRetrieval,
			InputSummary: map[string]any{
				"customer_id": customerID,
			},
			OutputSummary: map[string]any{
				"usage_records":      len(retrievalRes.UsageData),
				"knowledge_articles": len(retrievalRes.Articles),
				"degraded":           retrievalRes.Degraded,
			},
			Confidence:      retrievalRes.Confidence,
			ExecutionTimeMS: retrievalRes.ExecutionTimeMS,
			CreatedAt:       now,
		},
		{
			ID:        uuid.NewString(),
			CycleID:   cycleID,
			AgentType: contribution.AgentSentiment,
			InputSummary: map[string]any{
				"customer_id": customerID,
			},
			OutputSummary: map[string]any{
				"sentiment_score":   sentimentRes.Score,
				"sentiment_factors": sentimentRes.Factors,
				"interaction_count": sentimentRes.InteractionCount,
			},
			Confidence:      sentimentRes.Confidence,
			ExecutionTimeMS: sentimentRes.ExecutionTimeMS,
			CreatedAt:       now,
		},
		{
			ID:        uuid.NewString(),
			CycleID:   cycleID,
			AgentType: contribution.AgentReasoning,
			InputSummary: map[string]any{
				"usage_patterns_analyzed":      reasoningRes.Metadata.UsagePatternsAnalyzed,
				"knowledge_articles_used":      reasoningRes.Metadata.KnowledgeArticlesUsed,
				"past_recommendations_checked": reasoningRes.Metadata.PastRecommendationsChecked,
			},
			OutputSummary: map[string]any{
				"adoption_candidates": len(reasoningRes.Adoption),
				"upsell_candidates":   len(reasoningRes.Upsell),
				"filtered_count":      reasoningRes.Metadata.FilteredCount,
			},
			Confidence:      averageConfidence(reasoningRes.Adoption, reasoningRes.Upsell),
			ExecutionTimeMS: reasoningRes.ExecutionTimeMS,
			CreatedAt:       now,
		},
		{
			ID:        uuid.NewString(),
			CycleID:   cycleID,
			AgentType: contribution.AgentValidation,
			InputSummary: map[string]any{
				"total_candidates": validationRes.Summary.TotalCandidates,
			},
			OutputSummary: map[string]any{
				"validated_count":         validationRes.Summary.ValidatedCount,
				"duplicate_filtered":      validationRes.Summary.DuplicateFiltered,
				"content_safety_blocked":  validationRes.Summary.ContentSafetyBlocked,
				"low_confidence_filtered": validationRes.Summary.LowConfidenceFiltered,
			},
			Confidence:      validationRatio(validationRes.Summary),
			ExecutionTimeMS: validationRes.ExecutionTimeMS,
			CreatedAt:       now,
		},
	}
}

// averageConfidence is the mean confidence across all candidates, zero
// when the stage produced nothing.
func averageConfidence(lists ...[]recommendation.Recommendation) float64 {
	var sum float64
	var n int
	for _, list := range lists {
		for _, r := range list {
			sum += r.ConfidenceScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// validationRatio is the share of candidates that survived validation.
func validationRatio(s ValidationSummary) float64 {
	if s.TotalCandidates == 0 {
		return 0
	}
	return float64(s.ValidatedCount) / float64(s.TotalCandidates)
}
