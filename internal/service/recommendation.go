package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/contribution"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
	"github.com/supportiq/supportiq/internal/port/cache"
	"github.com/supportiq/supportiq/internal/port/database"
)

// GenerationOutput is a generation cycle result plus cache provenance.
type GenerationOutput struct {
	GenerateResult
	Cached bool `json:"cached"`
}

// ExplainabilityReport pairs a recommendation with the per-agent
// contribution records from the cycle that produced it.
type ExplainabilityReport struct {
	Recommendation recommendation.Recommendation `json:"recommendation"`
	Contributions  []contribution.Contribution   `json:"agent_contributions"`
}

// RecommendationService fronts the generation pipeline with caching,
// history loading, persistence, and the outcome lifecycle.
type RecommendationService struct {
	orchestrator *Orchestrator
	store        database.Store
	cache        cache.Cache
	metrics      *otel.Metrics

	analysisWindowDays int
	dedupWindowMonths  int
	cacheTTL           time.Duration
	log                *slog.Logger
}

// NewRecommendationService creates the recommendation service. cache and
// metrics may be nil.
func NewRecommendationService(
	orchestrator *Orchestrator,
	store database.Store,
	c cache.Cache,
	metrics *otel.Metrics,
	analysisWindowDays, dedupWindowMonths int,
	cacheTTL time.Duration,
	log *slog.Logger,
) *RecommendationService {
	return &RecommendationService{
		orchestrator:       orchestrator,
		store:              store,
		cache:              c,
		metrics:            metrics,
		analysisWindowDays: analysisWindowDays,
		dedupWindowMonths:  dedupWindowMonths,
		cacheTTL:           cacheTTL,
		log:                log,
	}
}

func cacheKey(customerID string) string {
	return "recommendations:" + customerID
}

// Generate produces recommendations for the customer, serving from cache
// unless forceRefresh is set. Successful cycles are cached for cacheTTL;
// degraded cycles are never cached.
func (s *RecommendationService) Generate(ctx context.Context, customerID string, forceRefresh bool) (*GenerationOutput, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}

	if s.cache != nil && !forceRefresh {
		if data, ok, err := s.cache.Get(ctx, cacheKey(customerID)); err == nil && ok {
			var out GenerationOutput
			if err := json.Unmarshal(data, &out); err == nil {
				out.Cached = true
				if s.metrics != nil {
					s.metrics.CacheHits.Add(ctx, 1)
				}
				s.log.InfoContext(ctx, "recommendations served from cache", "customer_id", customerID)
				return &out, nil
			}
		}
	}

	if s.metrics != nil {
		s.metrics.CyclesStarted.Add(ctx, 1)
	}

	since := time.Now().AddDate(0, -s.dedupWindowMonths, 0)
	past, err := s.store.PastRecommendations(ctx, customerID, since)
	if err != nil {
		// Without history, duplicate suppression cannot run, so degrade
		// instead of generating possibly repeated suggestions.
		s.log.ErrorContext(ctx, "failed to load recommendation history",
			"customer_id", customerID, "error", err)
		if s.metrics != nil {
			s.metrics.CyclesDegraded.Add(ctx, 1)
		}
		return &GenerationOutput{
			GenerateResult: GenerateResult{
				Adoption:      []recommendation.Recommendation{},
				Upsell:        []recommendation.Recommendation{},
				Blocked:       []BlockedRecommendation{},
				Contributions: []contribution.Contribution{},
				Metadata: OrchestrationMetadata{
					CustomerID:          customerID,
					Success:             false,
					Error:               fmt.Sprintf("history unavailable: %v", err),
					GracefulDegradation: true,
				},
			},
		}, nil
	}

	result, err := s.orchestrator.Generate(ctx, customerID, s.analysisWindowDays, past)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.GenerationTime.Record(ctx, float64(result.Metadata.GenerationTimeMS)/1000)
		s.metrics.Validated.Add(ctx, int64(result.ValidatedCount()))
		s.metrics.Blocked.Add(ctx, int64(len(result.Blocked)))
		if !result.Metadata.Success {
			s.metrics.CyclesDegraded.Add(ctx, 1)
		}
		if !result.Metadata.LatencyTargetMet {
			s.metrics.LatencyExceeded.Add(ctx, 1)
		}
	}

	out := &GenerationOutput{GenerateResult: *result}
	if !result.Metadata.Success {
		return out, nil
	}

	s.persist(ctx, result)

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, cacheKey(customerID), data, s.cacheTTL); err != nil {
				s.log.WarnContext(ctx, "failed to cache recommendations",
					"customer_id", customerID, "error", err)
			}
		}
	}

	return out, nil
}

// persist stores validated recommendations as Pending, tagging each with
// the cycle ID so explainability can find its contribution records.
func (s *RecommendationService) persist(ctx context.Context, result *GenerateResult) {
	if result.ValidatedCount() == 0 {
		return
	}
	now := time.Now()
	tag := func(r *recommendation.Recommendation) {
		r.OutcomeStatus = recommendation.OutcomePending
		r.CreatedAt = now
		r.UpdatedAt = now
		if r.ReasoningChain == nil {
			r.ReasoningChain = recommendation.ReasoningChain{}
		}
		r.ReasoningChain["cycle_id"] = result.Metadata.CycleID
	}
	for i := range result.Adoption {
		tag(&result.Adoption[i])
	}
	for i := range result.Upsell {
		tag(&result.Upsell[i])
	}

	recs := make([]recommendation.Recommendation, 0, result.ValidatedCount())
	recs = append(recs, result.Adoption...)
	recs = append(recs, result.Upsell...)
	if err := s.store.SaveRecommendations(ctx, recs); err != nil {
		// The agent still gets the generated result; only outcome tracking
		// for this cycle is lost.
		s.log.ErrorContext(ctx, "failed to persist recommendations",
			"cycle_id", result.Metadata.CycleID, "error", err)
	}
}

// PastRecommendations returns the customer's recommendation history over
// the last months (1 to 12).
func (s *RecommendationService) PastRecommendations(ctx context.Context, customerID string, months int) ([]recommendation.Recommendation, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if months < 1 || months > 12 {
		return nil, fmt.Errorf("%w: months must be between 1 and 12", domain.ErrValidation)
	}
	since := time.Now().AddDate(0, -months, 0)
	return s.store.PastRecommendations(ctx, customerID, since)
}

// UpdateOutcome transitions a recommendation through the outcome state
// machine and invalidates the customer's cached recommendations.
func (s *RecommendationService) UpdateOutcome(ctx context.Context, id string, status recommendation.OutcomeStatus, agentID, feedback string) (*recommendation.Recommendation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: recommendation id is required", domain.ErrValidation)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown outcome_status %q", domain.ErrValidation, status)
	}
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}

	current, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !recommendation.CanTransition(current.OutcomeStatus, status) {
		return nil, fmt.Errorf("%w: cannot transition outcome from %s to %s",
			domain.ErrConflict, current.OutcomeStatus, status)
	}

	updated, err := s.store.UpdateOutcome(ctx, id, status, agentID, feedback, time.Now())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey(updated.CustomerID)); err != nil {
			s.log.WarnContext(ctx, "failed to invalidate recommendations cache",
				"customer_id", updated.CustomerID, "error", err)
		}
	}

	s.log.InfoContext(ctx, "recommendation outcome updated",
		"recommendation_id", id, "outcome_status", status, "agent_id", agentID)

	return updated, nil
}

// TrackAcceptance records whether the customer accepted a delivered
// recommendation.
func (s *RecommendationService) TrackAcceptance(ctx context.Context, id string, accepted bool, agentID, feedback string) (*recommendation.Recommendation, error) {
	status := recommendation.OutcomeDeclined
	if accepted {
		status = recommendation.OutcomeAccepted
	}
	return s.UpdateOutcome(ctx, id, status, agentID, feedback)
}

// Explainability returns a recommendation together with the agent
// contribution records from its generation cycle.
func (s *RecommendationService) Explainability(ctx context.Context, id string) (*ExplainabilityReport, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: recommendation id is required", domain.ErrValidation)
	}

	rec, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &ExplainabilityReport{
		Recommendation: *rec,
		Contributions:  []contribution.Contribution{},
	}

	cycleID, _ := rec.ReasoningChain["cycle_id"].(string)
	if cycleID == "" {
		return report, nil
	}

	contribs, err := s.store.ContributionsByCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("load contributions for cycle %s: %w", cycleID, err)
	}
	report.Contributions = contribs
	return report, nil
}
