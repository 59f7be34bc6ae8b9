package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/knowledge"
	"github.com/supportiq/supportiq/internal/domain/usage"
	"github.com/supportiq/supportiq/internal/port/knowledgesource"
	"github.com/supportiq/supportiq/internal/port/usagesource"
	"github.com/supportiq/supportiq/internal/resilience"
)

// broadQuery seeds the initial knowledge search before usage data is known.
const broadQuery = "feature adoption best practices troubleshooting"

// RetrievalResult is the output of the retrieval stage.
type RetrievalResult struct {
	UsageData       []usage.Record      `json:"usage_data"`
	Articles        []knowledge.Article `json:"knowledge_articles"`
	Confidence      float64             `json:"confidence"`
	Degraded        bool                `json:"degraded,omitempty"`
	ExecutionTimeMS int64               `json:"execution_time_ms"`
}

// RetrievalAgent grounds recommendations in usage telemetry and knowledge
// base articles. The usage and broad knowledge queries run in parallel; a
// second, refined knowledge query follows once usage patterns are known.
type RetrievalAgent struct {
	usage     usagesource.Source
	knowledge knowledgesource.Source
	log       *slog.Logger
}

// NewRetrievalAgent creates a retrieval agent over the given sources.
func NewRetrievalAgent(usageSrc usagesource.Source, knowledgeSrc knowledgesource.Source, log *slog.Logger) *RetrievalAgent {
	return &RetrievalAgent{usage: usageSrc, knowledge: knowledgeSrc, log: log}
}

// Run fetches usage trends and knowledge articles for the customer.
// When the usage source's circuit is open the stage degrades to an empty
// usage list instead of failing the whole cycle.
func (a *RetrievalAgent) Run(ctx context.Context, customerID string, days int) (*RetrievalResult, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", domain.ErrValidation)
	}

	ctx, span := otel.StartStageSpan(ctx, "retrieval", customerID)
	defer span.End()

	start := time.Now()

	var (
		usageData []usage.Record
		articles  []knowledge.Article
		degraded  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := a.usage.UsageTrends(gctx, customerID, days)
		if err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, domain.ErrUnavailable) {
				a.log.WarnContext(gctx, "usage source unavailable, continuing without usage data",
					"customer_id", customerID, "error", err)
				degraded = true
				return nil
			}
			return fmt.Errorf("usage trends: %w", err)
		}
		usageData = records
		return nil
	})
	g.Go(func() error {
		found, err := a.knowledge.Search(gctx, broadQuery, 10, "")
		if err != nil {
			return fmt.Errorf("knowledge search: %w", err)
		}
		articles = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Confidence reflects the data the broad pass produced.
	confidence := retrievalConfidence(usageData, articles)

	if len(usageData) > 0 {
		refined, err := a.knowledge.Search(ctx, refinedQuery(usageData), 5, "")
		if err != nil {
			return nil, fmt.Errorf("refined knowledge search: %w", err)
		}
		articles = dedupeArticles(append(articles, refined...))
	}

	result := &RetrievalResult{
		UsageData:       usageData,
		Articles:        articles,
		Confidence:      confidence,
		Degraded:        degraded,
		ExecutionTimeMS: elapsedMS(start),
	}

	a.log.InfoContext(ctx, "retrieval complete",
		"customer_id", customerID,
		"usage_records", len(usageData),
		"articles", len(articles),
		"confidence", confidence,
		"degraded", degraded,
		"execution_time_ms", result.ExecutionTimeMS,
	)

	return result, nil
}

// refinedQuery targets low-adoption features (adoption opportunities, up to
// three) and high-adoption features (upsell opportunities, up to two).
func refinedQuery(usageData []usage.Record) string {
	var low, high []string
	for _, u := range usageData {
		switch u.Intensity {
		case usage.IntensityNone, usage.IntensityLow:
			low = append(low, u.FeatureName)
		case usage.IntensityHigh:
			high = append(high, u.FeatureName)
		}
	}

	var parts []string
	if len(low) > 0 {
		if len(low) > 3 {
			low = low[:3]
		}
		parts = append(parts, "adoption best practices for "+strings.Join(low, " "))
	}
	if len(high) > 0 {
		if len(high) > 2 {
			high = high[:2]
		}
		parts = append(parts, "upsell opportunities for customers using "+strings.Join(high, " "))
	}
	if len(parts) == 0 {
		return "product adoption recommendations"
	}
	return strings.Join(parts, " ")
}

// retrievalConfidence combines usage volume (0-0.4), article relevance
// (0-0.4) and pattern clarity (0-0.2), capped at 1.0.
func retrievalConfidence(usageData []usage.Record, articles []knowledge.Article) float64 {
	if len(usageData) == 0 && len(articles) == 0 {
		return 0
	}

	usageScore := math.Min(float64(len(usageData))/10.0, 0.4)

	var knowledgeScore float64
	if len(articles) > 0 {
		var sum float64
		for _, a := range articles {
			sum += a.RelevanceScore
		}
		knowledgeScore = sum / float64(len(articles)) * 0.4
	}

	var patternScore float64
	if len(usageData) > 0 {
		var hasHigh, hasLow bool
		for _, u := range usageData {
			switch u.Intensity {
			case usage.IntensityHigh:
				hasHigh = true
			case usage.IntensityLow, usage.IntensityNone:
				hasLow = true
			}
		}
		patternScore = 0.1
		if hasHigh && hasLow {
			patternScore = 0.2
		}
	}

	return math.Min(usageScore+knowledgeScore+patternScore, 1.0)
}

// dedupeArticles removes duplicates by ID, keeping the first occurrence,
// and sorts by relevance descending.
func dedupeArticles(articles []knowledge.Article) []knowledge.Article {
	seen := make(map[string]struct{}, len(articles))
	unique := make([]knowledge.Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		unique = append(unique, a)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].RelevanceScore > unique[j].RelevanceScore
	})
	return unique
}
