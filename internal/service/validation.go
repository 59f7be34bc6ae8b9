package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
	"github.com/supportiq/supportiq/internal/port/safety"
)

// minConfidence is the floor below which candidates are discarded.
const minConfidence = 0.5

// BlockedRecommendation records a candidate the validation stage refused,
// for the audit trail.
type BlockedRecommendation struct {
	RecommendationID string `json:"recommendation_id"`
	Text             string `json:"text_description"`
	BlockReason      string `json:"block_reason"`
}

// ValidationSummary counts validation outcomes per filter.
type ValidationSummary struct {
	TotalCandidates       int `json:"total_candidates"`
	DuplicateFiltered     int `json:"duplicate_filtered"`
	ContentSafetyBlocked  int `json:"content_safety_blocked"`
	LowConfidenceFiltered int `json:"low_confidence_filtered"`
	ValidatedCount        int `json:"validated_count"`
}

// ValidationResult is the output of the validation stage.
type ValidationResult struct {
	Validated       []recommendation.Recommendation `json:"validated_recommendations"`
	Blocked         []BlockedRecommendation         `json:"blocked_recommendations"`
	Summary         ValidationSummary               `json:"validation_summary"`
	ExecutionTimeMS int64                           `json:"execution_time_ms"`
}

// ValidationAgent is the last gate before recommendations reach a support
// agent: it drops duplicates of past recommendations, screens all text
// through content safety, and discards low-confidence candidates. Filters
// run in that order, so a candidate failing several checks reports the
// first one.
type ValidationAgent struct {
	safety safety.Validator
	log    *slog.Logger
}

// NewValidationAgent creates a validation agent using the given moderator.
func NewValidationAgent(validator safety.Validator, log *slog.Logger) *ValidationAgent {
	return &ValidationAgent{safety: validator, log: log}
}

// Run validates all candidates from the reasoning stage against the
// customer's past recommendations.
func (a *ValidationAgent) Run(
	ctx context.Context,
	customerID string,
	reasoning *ReasoningResult,
	past []recommendation.Recommendation,
) (*ValidationResult, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if reasoning == nil {
		return nil, fmt.Errorf("%w: reasoning result is required", domain.ErrValidation)
	}

	ctx, span := otel.StartStageSpan(ctx, "validation", customerID)
	defer span.End()

	start := time.Now()

	candidates := make([]recommendation.Recommendation, 0, len(reasoning.Adoption)+len(reasoning.Upsell))
	candidates = append(candidates, reasoning.Adoption...)
	candidates = append(candidates, reasoning.Upsell...)

	if len(candidates) == 0 {
		a.log.WarnContext(ctx, "no recommendation candidates to validate", "customer_id", customerID)
		return &ValidationResult{
			Validated:       []recommendation.Recommendation{},
			Blocked:         []BlockedRecommendation{},
			ExecutionTimeMS: elapsedMS(start),
		}, nil
	}

	var blocked []BlockedRecommendation

	afterDedup := a.filterDuplicates(ctx, candidates, past, &blocked)
	afterSafety, err := a.filterUnsafe(ctx, afterDedup, &blocked)
	if err != nil {
		return nil, err
	}
	validated := a.filterLowConfidence(ctx, afterSafety, &blocked)

	result := &ValidationResult{
		Validated: validated,
		Blocked:   blocked,
		Summary: ValidationSummary{
			TotalCandidates:       len(candidates),
			DuplicateFiltered:     len(candidates) - len(afterDedup),
			ContentSafetyBlocked:  len(afterDedup) - len(afterSafety),
			LowConfidenceFiltered: len(afterSafety) - len(validated),
			ValidatedCount:        len(validated),
		},
		ExecutionTimeMS: elapsedMS(start),
	}

	a.log.InfoContext(ctx, "validation complete",
		"customer_id", customerID,
		"validated", len(validated),
		"blocked", len(blocked),
		"execution_time_ms", result.ExecutionTimeMS,
	)

	return result, nil
}

// filterDuplicates drops candidates whose normalized text matches a
// non-excluded past recommendation. Re-suggestions annotated by the
// reasoning stage are exempt; they repeat old text deliberately.
func (a *ValidationAgent) filterDuplicates(
	ctx context.Context,
	candidates []recommendation.Recommendation,
	past []recommendation.Recommendation,
	blocked *[]BlockedRecommendation,
) []recommendation.Recommendation {
	pastTexts := make(map[string]struct{}, len(past))
	for _, p := range past {
		if p.OutcomeStatus == recommendation.OutcomeExcluded {
			continue
		}
		pastTexts[p.NormalizedText()] = struct{}{}
	}

	kept := candidates[:0]
	for _, c := range candidates {
		_, isResuggestion := c.ReasoningChain["re_suggestion"]
		if _, dup := pastTexts[c.NormalizedText()]; dup && !isResuggestion {
			a.log.InfoContext(ctx, "blocking duplicate recommendation",
				"recommendation_id", c.ID, "text", truncate(c.Text, 50))
			*blocked = append(*blocked, BlockedRecommendation{
				RecommendationID: c.ID,
				Text:             truncate(c.Text, 100),
				BlockReason:      "duplicate",
			})
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// filterUnsafe screens all candidate text through content safety in one
// batch. The moderator fails closed, so any moderation failure surfaces
// here as blocked candidates rather than passed ones.
func (a *ValidationAgent) filterUnsafe(
	ctx context.Context,
	candidates []recommendation.Recommendation,
	blocked *[]BlockedRecommendation,
) ([]recommendation.Recommendation, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	results, err := a.safety.ValidateBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("content safety: %w", err)
	}

	kept := candidates[:0]
	for _, c := range candidates {
		res, ok := results[c.Text]
		if ok && res.IsSafe {
			kept = append(kept, c)
			continue
		}
		categories := []string{"unknown"}
		if ok {
			categories = res.BlockedCategories
		}
		a.log.WarnContext(ctx, "content safety blocked recommendation",
			"recommendation_id", c.ID, "categories", categories)
		*blocked = append(*blocked, BlockedRecommendation{
			RecommendationID: c.ID,
			Text:             truncate(c.Text, 100),
			BlockReason:      "content_safety: " + strings.Join(categories, ", "),
		})
	}
	return kept, nil
}

// filterLowConfidence discards candidates under the confidence floor.
func (a *ValidationAgent) filterLowConfidence(
	ctx context.Context,
	candidates []recommendation.Recommendation,
	blocked *[]BlockedRecommendation,
) []recommendation.Recommendation {
	kept := candidates[:0]
	for _, c := range candidates {
		if c.ConfidenceScore >= minConfidence {
			kept = append(kept, c)
			continue
		}
		a.log.InfoContext(ctx, "blocking low-confidence recommendation",
			"recommendation_id", c.ID, "confidence", c.ConfidenceScore)
		*blocked = append(*blocked, BlockedRecommendation{
			RecommendationID: c.ID,
			Text:             truncate(c.Text, 100),
			BlockReason:      fmt.Sprintf("low_confidence: %.2f", c.ConfidenceScore),
		})
	}
	return kept
}
