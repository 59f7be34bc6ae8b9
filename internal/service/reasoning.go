package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/knowledge"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
	"github.com/supportiq/supportiq/internal/domain/usage"
)

// Candidate count caps per generation cycle.
const (
	maxAdoption = 5
	maxUpsell   = 3
)

// Re-suggestion and cool-down windows for history filtering, in days.
const (
	declinedCooldownDays = 90
	acceptedCooldownDays = 30
)

// ReasoningMetadata summarizes what the reasoning stage consumed.
type ReasoningMetadata struct {
	SentimentScore             float64  `json:"sentiment_score"`
	SentimentFactors           []string `json:"sentiment_factors"`
	UsagePatternsAnalyzed      int      `json:"usage_patterns_analyzed"`
	KnowledgeArticlesUsed      int      `json:"knowledge_articles_used"`
	PastRecommendationsChecked int      `json:"past_recommendations_checked"`
	FilteredCount              int      `json:"filtered_count"`
}

// ReasoningResult is the output of the reasoning stage.
type ReasoningResult struct {
	Adoption        []recommendation.Recommendation `json:"adoption_recommendations"`
	Upsell          []recommendation.Recommendation `json:"upsell_recommendations"`
	Metadata        ReasoningMetadata               `json:"reasoning_metadata"`
	ExecutionTimeMS int64                           `json:"execution_time_ms"`
}

// ReasoningAgent turns retrieval and sentiment outputs into candidate
// recommendations: adoption candidates for underused features and upsell
// candidates when heavy usage signals expansion readiness. Candidates that
// repeat recent history are filtered, and upsell is suppressed entirely for
// unhappy customers.
type ReasoningAgent struct {
	log *slog.Logger
}

// NewReasoningAgent creates a reasoning agent.
func NewReasoningAgent(log *slog.Logger) *ReasoningAgent {
	return &ReasoningAgent{log: log}
}

// Run generates candidate recommendations from the stage inputs.
func (a *ReasoningAgent) Run(
	ctx context.Context,
	customerID string,
	retrieval *RetrievalResult,
	sentiment *SentimentResult,
	past []recommendation.Recommendation,
) (*ReasoningResult, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if retrieval == nil || sentiment == nil {
		return nil, fmt.Errorf("%w: retrieval and sentiment results are required", domain.ErrValidation)
	}

	ctx, span := otel.StartStageSpan(ctx, "reasoning", customerID)
	defer span.End()

	start := time.Now()

	adoption := a.adoptionCandidates(customerID, retrieval.UsageData, retrieval.Articles, sentiment.Score)
	upsell := a.upsellCandidates(customerID, retrieval.UsageData, retrieval.Articles, sentiment.Score)

	generated := len(adoption) + len(upsell)

	adoption = a.filterHistory(ctx, adoption, past)
	upsell = a.filterHistory(ctx, upsell, past)

	adoption = a.sentimentGate(ctx, adoption, sentiment)
	upsell = a.sentimentGate(ctx, upsell, sentiment)

	if len(adoption) > maxAdoption {
		adoption = adoption[:maxAdoption]
	}
	if len(upsell) > maxUpsell {
		upsell = upsell[:maxUpsell]
	}

	result := &ReasoningResult{
		Adoption: adoption,
		Upsell:   upsell,
		Metadata: ReasoningMetadata{
			SentimentScore:             sentiment.Score,
			SentimentFactors:           sentiment.Factors,
			UsagePatternsAnalyzed:      len(retrieval.UsageData),
			KnowledgeArticlesUsed:      len(retrieval.Articles),
			PastRecommendationsChecked: len(past),
			FilteredCount:              generated - len(adoption) - len(upsell),
		},
		ExecutionTimeMS: elapsedMS(start),
	}

	a.log.InfoContext(ctx, "reasoning complete",
		"customer_id", customerID,
		"adoption", len(adoption),
		"upsell", len(upsell),
		"filtered", result.Metadata.FilteredCount,
		"execution_time_ms", result.ExecutionTimeMS,
	)

	return result, nil
}

// adoptionCandidates pairs each None/Low intensity feature with its best
// matching article, sorted by confidence descending.
func (a *ReasoningAgent) adoptionCandidates(
	customerID string,
	usageData []usage.Record,
	articles []knowledge.Article,
	sentimentScore float64,
) []recommendation.Recommendation {
	var candidates []recommendation.Recommendation
	now := time.Now()

	for _, feature := range usageData {
		if feature.Intensity != usage.IntensityNone && feature.Intensity != usage.IntensityLow {
			continue
		}

		best, ok := bestArticleFor(feature.FeatureName, articles)
		if !ok {
			continue
		}

		confidence := candidateConfidence(best.RelevanceScore, feature.UsageCount, sentimentScore)
		candidates = append(candidates, recommendation.Recommendation{
			ID:              uuid.NewString(),
			CustomerID:      customerID,
			Type:            recommendation.TypeAdoption,
			Text:            adoptionText(feature.FeatureName, best, feature.UsageCount),
			ConfidenceScore: confidence,
			DataSources: []recommendation.DataSource{
				{
					SourceType:  "FabricIQ",
					SourceID:    feature.ID,
					Description: "Usage data for " + feature.FeatureName,
				},
				{
					SourceType:  "FoundryIQ",
					SourceID:    best.ID,
					Description: best.Title,
				},
			},
			ReasoningChain: recommendation.ReasoningChain{
				"retrieval_agent": map[string]any{
					"feature":       feature.FeatureName,
					"current_usage": feature.UsageCount,
					"intensity":     string(feature.Intensity),
				},
				"reasoning_agent": map[string]any{
					"rationale":       fmt.Sprintf("Low usage of %s presents adoption opportunity", feature.FeatureName),
					"knowledge_match": best.Title,
				},
			},
			GeneratedAt:   now,
			OutcomeStatus: recommendation.OutcomePending,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
	})
	return candidates
}

// upsellCandidates proposes expansion offers when High intensity features
// exist and the knowledge base carries upsell material. Each candidate cites
// the top two high-usage features as evidence.
func (a *ReasoningAgent) upsellCandidates(
	customerID string,
	usageData []usage.Record,
	articles []knowledge.Article,
	sentimentScore float64,
) []recommendation.Recommendation {
	var high []usage.Record
	for _, u := range usageData {
		if u.Intensity == usage.IntensityHigh {
			high = append(high, u)
		}
	}

	var upsellArticles []knowledge.Article
	for _, art := range articles {
		if isUpsellArticle(art) {
			upsellArticles = append(upsellArticles, art)
		}
	}

	if len(high) == 0 || len(upsellArticles) == 0 {
		return nil
	}
	if len(upsellArticles) > maxUpsell {
		upsellArticles = upsellArticles[:maxUpsell]
	}

	top := high
	if len(top) > 2 {
		top = top[:2]
	}
	names := make([]string, len(top))
	totalUsage := 0
	for i, f := range top {
		names[i] = f.FeatureName
		totalUsage += f.UsageCount
	}

	now := time.Now()
	var candidates []recommendation.Recommendation
	for _, art := range upsellArticles {
		candidates = append(candidates, recommendation.Recommendation{
			ID:              uuid.NewString(),
			CustomerID:      customerID,
			Type:            recommendation.TypeUpsell,
			Text:            upsellText(names, art),
			ConfidenceScore: candidateConfidence(art.RelevanceScore, totalUsage, sentimentScore),
			DataSources: []recommendation.DataSource{
				{
					SourceType:  "FabricIQ",
					SourceID:    "usage_aggregate",
					Description: "High usage of " + strings.Join(names, ", "),
				},
				{
					SourceType:  "FoundryIQ",
					SourceID:    art.ID,
					Description: art.Title,
				},
			},
			ReasoningChain: recommendation.ReasoningChain{
				"retrieval_agent": map[string]any{
					"high_usage_features": names,
					"usage_intensity":     string(usage.IntensityHigh),
				},
				"reasoning_agent": map[string]any{
					"rationale":       "High feature engagement indicates readiness for premium offerings",
					"knowledge_match": art.Title,
				},
			},
			GeneratedAt:   now,
			OutcomeStatus: recommendation.OutcomePending,
		})
	}
	return candidates
}

// filterHistory drops candidates that repeat recent history and annotates
// re-suggestions of long-ago declines.
func (a *ReasoningAgent) filterHistory(
	ctx context.Context,
	candidates []recommendation.Recommendation,
	past []recommendation.Recommendation,
) []recommendation.Recommendation {
	if len(past) == 0 {
		return candidates
	}

	type pastEntry struct {
		outcome   recommendation.OutcomeStatus
		daysSince int
		hasDays   bool
	}
	now := time.Now()
	byText := make(map[string]pastEntry, len(past))
	for _, p := range past {
		entry := pastEntry{outcome: p.OutcomeStatus}
		if p.OutcomeAt != nil {
			entry.daysSince = int(now.Sub(*p.OutcomeAt).Hours() / 24)
			entry.hasDays = true
		}
		byText[p.NormalizedText()] = entry
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		entry, seen := byText[c.NormalizedText()]
		if seen {
			switch {
			case entry.outcome == recommendation.OutcomeExcluded:
				a.log.InfoContext(ctx, "dropping excluded recommendation", "text", truncate(c.Text, 50))
				continue
			case entry.outcome == recommendation.OutcomeDeclined && entry.hasDays && entry.daysSince < declinedCooldownDays:
				a.log.InfoContext(ctx, "dropping recently declined recommendation",
					"days_since", entry.daysSince, "text", truncate(c.Text, 50))
				continue
			case entry.outcome == recommendation.OutcomePending:
				a.log.InfoContext(ctx, "dropping already pending recommendation", "text", truncate(c.Text, 50))
				continue
			case entry.outcome == recommendation.OutcomeAccepted && entry.hasDays && entry.daysSince < acceptedCooldownDays:
				a.log.InfoContext(ctx, "dropping recently accepted recommendation",
					"days_since", entry.daysSince, "text", truncate(c.Text, 50))
				continue
			case entry.outcome == recommendation.OutcomeDeclined && entry.hasDays && entry.daysSince >= declinedCooldownDays:
				c.ReasoningChain["re_suggestion"] = map[string]any{
					"previous_outcome":    string(recommendation.OutcomeDeclined),
					"days_since_previous": entry.daysSince,
					"rationale":           "Re-suggesting after 90+ days as customer context may have changed",
				}
				a.log.InfoContext(ctx, "re-suggesting previously declined recommendation",
					"days_since", entry.daysSince, "text", truncate(c.Text, 50))
			}
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// sentimentGate blocks upsell candidates for unhappy customers. Adoption
// candidates always pass; they help address negative sentiment.
func (a *ReasoningAgent) sentimentGate(
	ctx context.Context,
	candidates []recommendation.Recommendation,
	sentiment *SentimentResult,
) []recommendation.Recommendation {
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Type == recommendation.TypeUpsell {
			if sentiment.Score < -0.2 {
				a.log.InfoContext(ctx, "blocking upsell on negative sentiment", "sentiment_score", sentiment.Score)
				continue
			}
			if hasIssueFactor(sentiment.Factors) {
				a.log.InfoContext(ctx, "blocking upsell on unresolved issues")
				continue
			}
		}
		filtered = append(filtered, c)
	}
	return filtered
}

func hasIssueFactor(factors []string) bool {
	for _, f := range factors {
		if strings.Contains(f, "unresolved") || strings.Contains(f, "escalation") {
			return true
		}
	}
	return false
}

// bestArticleFor finds the most relevant article mentioning the feature in
// its title or content, or categorized as adoption material.
func bestArticleFor(featureName string, articles []knowledge.Article) (knowledge.Article, bool) {
	name := strings.ToLower(featureName)
	var best knowledge.Article
	found := false
	for _, art := range articles {
		if !strings.Contains(strings.ToLower(art.Title), name) &&
			!strings.Contains(strings.ToLower(art.Content), name) &&
			!strings.Contains(strings.ToLower(art.Category), "adoption") {
			continue
		}
		if !found || art.RelevanceScore > best.RelevanceScore {
			best = art
			found = true
		}
	}
	return best, found
}

// isUpsellArticle reports whether the article carries expansion material.
func isUpsellArticle(art knowledge.Article) bool {
	if strings.Contains(strings.ToLower(art.Category), "upsell") {
		return true
	}
	if strings.Contains(strings.ToLower(art.Title), "enterprise") {
		return true
	}
	if strings.Contains(strings.ToLower(art.Content), "premium") {
		return true
	}
	for _, tag := range art.Tags {
		if strings.Contains(strings.ToLower(tag), "upsell") {
			return true
		}
	}
	return false
}

// adoptionText renders the agent-facing text for an adoption candidate,
// folding in the article's first sentence as the key insight.
func adoptionText(featureName string, art knowledge.Article, currentUsage int) string {
	insight, _, _ := strings.Cut(art.Content, ".")

	if currentUsage == 0 {
		return fmt.Sprintf(
			"Enable '%s' feature to unlock new capabilities. %s. This feature is currently not activated for your account.",
			featureName, insight,
		)
	}
	return fmt.Sprintf(
		"Increase usage of '%s' to maximize value. Your team has used it %d times recently. %s.",
		featureName, currentUsage, insight,
	)
}

// upsellText renders the agent-facing text for an upsell candidate.
func upsellText(featureNames []string, art knowledge.Article) string {
	benefit, _, _ := strings.Cut(art.Content, ".")
	return fmt.Sprintf(
		"Based on your high usage of %s, consider upgrading to unlock advanced capabilities. %s. Your current engagement level indicates strong ROI potential.",
		strings.Join(featureNames, " and "), benefit,
	)
}

// candidateConfidence combines article relevance (0-0.4), usage volume
// (0-0.3) and a sentiment adjustment (0-0.3), capped at 1.0.
func candidateConfidence(relevance float64, usageCount int, sentimentScore float64) float64 {
	knowledgeScore := relevance * 0.4
	usageScore := math.Min(float64(usageCount)/100.0, 0.3)
	sentimentContrib := (sentimentScore + 1.0) / 2.0 * 0.3
	return math.Min(knowledgeScore+usageScore+sentimentContrib, 1.0)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
