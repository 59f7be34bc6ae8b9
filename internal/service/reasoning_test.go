package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/knowledge"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
	"github.com/supportiq/supportiq/internal/domain/usage"
)

func adoptionArticle() knowledge.Article {
	return knowledge.Article{
		ID:             "kb_adopt",
		Title:          "Advanced Reporting Best Practices",
		Content:        "Advanced Reporting gives teams self-serve insight. Start with templates.",
		RelevanceScore: 0.92,
		Category:       "Feature Adoption",
	}
}

func upsellArticle() knowledge.Article {
	return knowledge.Article{
		ID:             "kb_upsell",
		Title:          "Upsell Guide: Enterprise Tier Benefits",
		Content:        "Premium plans unlock unlimited API calls. Dedicated support included.",
		RelevanceScore: 0.85,
		Category:       "Upsell Guide",
		Tags:           []string{"upsell"},
	}
}

func retrievalFixture() *RetrievalResult {
	return &RetrievalResult{
		UsageData: []usage.Record{
			feature("Dashboard Analytics", 142, usage.IntensityHigh),
			feature("Advanced Reporting", 0, usage.IntensityNone),
			feature("Data Export", 12, usage.IntensityLow),
		},
		Articles:   []knowledge.Article{adoptionArticle(), upsellArticle()},
		Confidence: 0.8,
	}
}

func neutralSentiment() *SentimentResult {
	return &SentimentResult{Score: 0.3, Factors: []string{"positive_support_history"}, Confidence: 0.6}
}

func TestReasoningGeneratesAdoptionAndUpsell(t *testing.T) {
	agent := NewReasoningAgent(testLogger())

	res, err := agent.Run(context.Background(), "cust_1", retrievalFixture(), neutralSentiment(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Adoption) != 2 {
		t.Fatalf("adoption candidates = %d, want 2", len(res.Adoption))
	}
	if len(res.Upsell) != 1 {
		t.Fatalf("upsell candidates = %d, want 1", len(res.Upsell))
	}

	for _, c := range res.Adoption {
		if c.Type != recommendation.TypeAdoption {
			t.Fatalf("type = %s, want Adoption", c.Type)
		}
		if len(c.DataSources) != 2 {
			t.Fatalf("data sources = %d, want 2", len(c.DataSources))
		}
		if c.ReasoningChain["retrieval_agent"] == nil || c.ReasoningChain["reasoning_agent"] == nil {
			t.Fatal("reasoning chain missing agent entries")
		}
	}

	up := res.Upsell[0]
	if !strings.Contains(up.Text, "Dashboard Analytics") {
		t.Fatalf("upsell text missing feature evidence: %q", up.Text)
	}
	if !strings.Contains(up.Text, "strong ROI potential") {
		t.Fatalf("upsell text = %q", up.Text)
	}
}

func TestReasoningAdoptionTexts(t *testing.T) {
	art := adoptionArticle()

	zero := adoptionText("Advanced Reporting", art, 0)
	if !strings.HasPrefix(zero, "Enable 'Advanced Reporting' feature to unlock new capabilities.") {
		t.Fatalf("zero-usage text = %q", zero)
	}
	if !strings.Contains(zero, "currently not activated") {
		t.Fatalf("zero-usage text = %q", zero)
	}

	low := adoptionText("Data Export", art, 12)
	if !strings.HasPrefix(low, "Increase usage of 'Data Export' to maximize value. Your team has used it 12 times recently.") {
		t.Fatalf("low-usage text = %q", low)
	}
}

func TestReasoningSentimentGateBlocksUpsell(t *testing.T) {
	agent := NewReasoningAgent(testLogger())

	tests := []struct {
		name      string
		sentiment *SentimentResult
	}{
		{"negative score", &SentimentResult{Score: -0.5}},
		{"unresolved issues", &SentimentResult{Score: 0.2, Factors: []string{"unresolved_issues_count_2"}}},
		{"escalation", &SentimentResult{Score: 0.2, Factors: []string{"recent_escalation"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := agent.Run(context.Background(), "cust_1", retrievalFixture(), tt.sentiment, nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Upsell) != 0 {
				t.Fatalf("upsell candidates = %d, want 0", len(res.Upsell))
			}
			// Adoption still flows; it addresses the dissatisfaction.
			if len(res.Adoption) == 0 {
				t.Fatal("expected adoption candidates to pass the gate")
			}
		})
	}
}

func TestReasoningHistoryFilter(t *testing.T) {
	agent := NewReasoningAgent(testLogger())
	ret := retrievalFixture()
	sent := neutralSentiment()

	base, err := agent.Run(context.Background(), "cust_1", ret, sent, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(base.Adoption) == 0 {
		t.Fatal("fixture produced no adoption candidates")
	}
	text := base.Adoption[0].Text

	pastWith := func(status recommendation.OutcomeStatus, daysAgo int) []recommendation.Recommendation {
		at := time.Now().Add(-time.Duration(daysAgo) * 24 * time.Hour)
		return []recommendation.Recommendation{{
			ID:            "rec_past",
			CustomerID:    "cust_1",
			Type:          recommendation.TypeAdoption,
			Text:          text,
			OutcomeStatus: status,
			OutcomeAt:     &at,
		}}
	}

	t.Run("recently declined is dropped", func(t *testing.T) {
		res, err := agent.Run(context.Background(), "cust_1", ret, sent, pastWith(recommendation.OutcomeDeclined, 45))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Adoption) != len(base.Adoption)-1 {
			t.Fatalf("adoption candidates = %d, want %d", len(res.Adoption), len(base.Adoption)-1)
		}
	})

	t.Run("old decline is re-suggested with annotation", func(t *testing.T) {
		res, err := agent.Run(context.Background(), "cust_1", ret, sent, pastWith(recommendation.OutcomeDeclined, 120))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Adoption) != len(base.Adoption) {
			t.Fatalf("adoption candidates = %d, want %d", len(res.Adoption), len(base.Adoption))
		}
		var annotated *recommendation.Recommendation
		for i := range res.Adoption {
			if res.Adoption[i].Text == text {
				annotated = &res.Adoption[i]
			}
		}
		if annotated == nil {
			t.Fatal("re-suggested candidate not found")
		}
		note, ok := annotated.ReasoningChain["re_suggestion"].(map[string]any)
		if !ok {
			t.Fatal("missing re_suggestion annotation")
		}
		if note["previous_outcome"] != string(recommendation.OutcomeDeclined) {
			t.Fatalf("previous_outcome = %v", note["previous_outcome"])
		}
	})

	t.Run("excluded is always dropped", func(t *testing.T) {
		past := pastWith(recommendation.OutcomeExcluded, 400)
		res, err := agent.Run(context.Background(), "cust_1", ret, sent, past)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Adoption) != len(base.Adoption)-1 {
			t.Fatalf("adoption candidates = %d, want %d", len(res.Adoption), len(base.Adoption)-1)
		}
	})

	t.Run("pending is dropped", func(t *testing.T) {
		res, err := agent.Run(context.Background(), "cust_1", ret, sent, pastWith(recommendation.OutcomePending, 1))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Adoption) != len(base.Adoption)-1 {
			t.Fatalf("adoption candidates = %d, want %d", len(res.Adoption), len(base.Adoption)-1)
		}
	})

	t.Run("recently accepted is dropped", func(t *testing.T) {
		res, err := agent.Run(context.Background(), "cust_1", ret, sent, pastWith(recommendation.OutcomeAccepted, 10))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Adoption) != len(base.Adoption)-1 {
			t.Fatalf("adoption candidates = %d, want %d", len(res.Adoption), len(base.Adoption)-1)
		}
	})
}

func TestReasoningCapsCandidates(t *testing.T) {
	var usageData []usage.Record
	for _, name := range []string{"F1", "F2", "F3", "F4", "F5", "F6", "F7"} {
		usageData = append(usageData, feature(name, 0, usage.IntensityNone))
	}
	ret := &RetrievalResult{
		UsageData: usageData,
		Articles:  []knowledge.Article{adoptionArticle()},
	}

	agent := NewReasoningAgent(testLogger())
	res, err := agent.Run(context.Background(), "cust_1", ret, neutralSentiment(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Adoption) != maxAdoption {
		t.Fatalf("adoption candidates = %d, want %d", len(res.Adoption), maxAdoption)
	}
}

func TestReasoningNoUpsellWithoutHighUsage(t *testing.T) {
	ret := &RetrievalResult{
		UsageData: []usage.Record{feature("Data Export", 12, usage.IntensityLow)},
		Articles:  []knowledge.Article{adoptionArticle(), upsellArticle()},
	}

	agent := NewReasoningAgent(testLogger())
	res, err := agent.Run(context.Background(), "cust_1", ret, neutralSentiment(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Upsell) != 0 {
		t.Fatalf("upsell candidates = %d, want 0", len(res.Upsell))
	}
}

func TestReasoningValidatesInput(t *testing.T) {
	agent := NewReasoningAgent(testLogger())

	if _, err := agent.Run(context.Background(), "", retrievalFixture(), neutralSentiment(), nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := agent.Run(context.Background(), "cust_1", nil, neutralSentiment(), nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
