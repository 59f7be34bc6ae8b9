package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/interaction"
	"github.com/supportiq/supportiq/internal/port/interactionsource"
)

// RecentIssue is an unresolved or escalated interaction from the last 30 days.
type RecentIssue struct {
	EventID   string    `json:"event_id"`
	Topics    []string  `json:"topics"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SentimentResult is the output of the sentiment stage.
type SentimentResult struct {
	Score            float64       `json:"sentiment_score"`
	Factors          []string      `json:"sentiment_factors"`
	InteractionCount int           `json:"interaction_count"`
	RecentIssues     []RecentIssue `json:"recent_issues"`
	Confidence       float64       `json:"confidence"`
	ExecutionTimeMS  int64         `json:"execution_time_ms"`
}

// SentimentAgent scores customer mood from support interaction history.
// Recent interactions weigh more than old ones so a recovering customer is
// not penalized for last quarter's incident.
type SentimentAgent struct {
	interactions interactionsource.Source
	log          *slog.Logger
}

// NewSentimentAgent creates a sentiment agent reading from the given source.
func NewSentimentAgent(src interactionsource.Source, log *slog.Logger) *SentimentAgent {
	return &SentimentAgent{interactions: src, log: log}
}

// Run analyzes the customer's interactions over the last days and returns
// the weighted sentiment score, influencing factors and a confidence value.
func (a *SentimentAgent) Run(ctx context.Context, customerID string, days int) (*SentimentResult, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", domain.ErrValidation)
	}

	ctx, span := otel.StartStageSpan(ctx, "sentiment", customerID)
	defer span.End()

	start := time.Now()

	events, err := a.interactions.Interactions(ctx, customerID, days)
	if err != nil {
		return nil, fmt.Errorf("interaction history: %w", err)
	}

	if len(events) == 0 {
		a.log.InfoContext(ctx, "no interaction history", "customer_id", customerID)
		return &SentimentResult{
			Factors:         []string{"no_interaction_history"},
			RecentIssues:    []RecentIssue{},
			ExecutionTimeMS: elapsedMS(start),
		}, nil
	}

	result := &SentimentResult{
		Score:            weightedSentiment(events),
		Factors:          sentimentFactors(events),
		InteractionCount: len(events),
		RecentIssues:     recentIssues(events),
		Confidence:       sentimentConfidence(events),
	}
	result.ExecutionTimeMS = elapsedMS(start)

	a.log.InfoContext(ctx, "sentiment analysis complete",
		"customer_id", customerID,
		"sentiment_score", result.Score,
		"confidence", result.Confidence,
		"interaction_count", result.InteractionCount,
		"execution_time_ms", result.ExecutionTimeMS,
	)

	return result, nil
}

// weightedSentiment averages sentiment scores with exponential decay so the
// most recent interaction carries weight 1.0, the next 0.9, then 0.81, ...
func weightedSentiment(events []interaction.Event) float64 {
	sorted := make([]interaction.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	var weightedSum, totalWeight float64
	weight := 1.0
	for _, e := range sorted {
		weightedSum += e.SentimentScore * weight
		totalWeight += weight
		weight *= 0.9
	}

	if totalWeight == 0 {
		return 0
	}
	return clamp(weightedSum/totalWeight, -1, 1)
}

// sentimentFactors derives the named factors consumed by the reasoning stage.
func sentimentFactors(events []interaction.Event) []string {
	var factors []string

	unresolved := 0
	escalated := false
	for _, e := range events {
		if e.ResolutionStatus != interaction.ResolutionResolved {
			unresolved++
		}
		if e.ResolutionStatus == interaction.ResolutionEscalated {
			escalated = true
		}
	}
	if unresolved > 0 {
		factors = append(factors, fmt.Sprintf("unresolved_issues_count_%d", unresolved))
	}
	if escalated {
		factors = append(factors, "recent_escalation")
	}

	// Trend: compare the three newest against the three oldest scores.
	if len(events) >= 3 {
		sorted := make([]interaction.Event, len(events))
		copy(sorted, events)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		n := len(sorted)
		newestAvg := (sorted[n-1].SentimentScore + sorted[n-2].SentimentScore + sorted[n-3].SentimentScore) / 3
		oldestAvg := (sorted[0].SentimentScore + sorted[1].SentimentScore + sorted[2].SentimentScore) / 3
		switch {
		case newestAvg > oldestAvg+0.2:
			factors = append(factors, "improving_sentiment")
		case newestAvg < oldestAvg-0.2:
			factors = append(factors, "declining_sentiment")
		}
	}

	if len(events) > 10 {
		factors = append(factors, "high_interaction_frequency")
	}

	var sum float64
	for _, e := range events {
		sum += e.SentimentScore
	}
	avg := sum / float64(len(events))
	switch {
	case avg > 0.5:
		factors = append(factors, "positive_support_history")
	case avg < -0.3:
		factors = append(factors, "negative_support_history")
	}

	return factors
}

// recentIssues lists unresolved or escalated interactions from the last 30 days.
func recentIssues(events []interaction.Event) []RecentIssue {
	cutoff := time.Now().AddDate(0, 0, -30)
	issues := []RecentIssue{}
	for _, e := range events {
		if e.Timestamp.After(cutoff) && e.Unresolved() {
			issues = append(issues, RecentIssue{
				EventID:   e.ID,
				Topics:    e.Topics,
				Status:    string(e.ResolutionStatus),
				Timestamp: e.Timestamp,
			})
		}
	}
	return issues
}

// sentimentConfidence combines sample size (0-0.5), recency (0-0.3) and
// score consistency (0-0.2), capped at 1.0.
func sentimentConfidence(events []interaction.Event) float64 {
	if len(events) == 0 {
		return 0
	}

	sampleScore := math.Min(float64(len(events))/20.0, 0.5)

	cutoff := time.Now().AddDate(0, 0, -30)
	recent := 0
	for _, e := range events {
		if e.Timestamp.After(cutoff) {
			recent++
		}
	}
	recencyScore := math.Min(float64(recent)/10.0, 0.3)

	consistencyScore := 0.1
	if len(events) > 1 {
		var sum float64
		for _, e := range events {
			sum += e.SentimentScore
		}
		avg := sum / float64(len(events))
		var variance float64
		for _, e := range events {
			variance += (e.SentimentScore - avg) * (e.SentimentScore - avg)
		}
		variance /= float64(len(events))
		consistencyScore = math.Max(0, 0.2-variance*0.2)
	}

	return math.Min(sampleScore+recencyScore+consistencyScore, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func elapsedMS(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}
