package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/knowledge"
	"github.com/supportiq/supportiq/internal/domain/usage"
	"github.com/supportiq/supportiq/internal/resilience"
)

type stubUsage struct {
	records []usage.Record
	err     error
}

func (s *stubUsage) UsageTrends(_ context.Context, _ string, _ int) ([]usage.Record, error) {
	return s.records, s.err
}

type stubKnowledge struct {
	search  func(query string, topK int) ([]knowledge.Article, error)
	queries []string
}

func (s *stubKnowledge) Search(_ context.Context, query string, topK int, _ string) ([]knowledge.Article, error) {
	s.queries = append(s.queries, query)
	if s.search == nil {
		return nil, nil
	}
	return s.search(query, topK)
}

func feature(name string, count int, intensity usage.Intensity) usage.Record {
	return usage.Record{
		ID:          "usage_" + strings.ReplaceAll(strings.ToLower(name), " ", "_"),
		CustomerID:  "cust_1",
		FeatureName: name,
		UsageCount:  count,
		Intensity:   intensity,
	}
}

func article(id string, relevance float64) knowledge.Article {
	return knowledge.Article{
		ID:             id,
		Title:          "Article " + id,
		Content:        "Content for " + id + ". More detail follows.",
		RelevanceScore: relevance,
		Category:       "Feature Adoption",
	}
}

func TestRetrievalRunsBothSources(t *testing.T) {
	usageSrc := &stubUsage{records: []usage.Record{
		feature("Dashboard Analytics", 142, usage.IntensityHigh),
		feature("Data Export", 12, usage.IntensityLow),
	}}
	knowledgeSrc := &stubKnowledge{search: func(query string, _ int) ([]knowledge.Article, error) {
		if query == broadQuery {
			return []knowledge.Article{article("kb_1", 0.9)}, nil
		}
		return []knowledge.Article{article("kb_2", 0.8)}, nil
	}}
	agent := NewRetrievalAgent(usageSrc, knowledgeSrc, testLogger())

	res, err := agent.Run(context.Background(), "cust_1", 90)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.UsageData) != 2 {
		t.Fatalf("usage records = %d, want 2", len(res.UsageData))
	}
	if len(res.Articles) != 2 {
		t.Fatalf("articles = %d, want 2", len(res.Articles))
	}
	if res.Degraded {
		t.Fatal("unexpected degraded flag")
	}
	if len(knowledgeSrc.queries) != 2 {
		t.Fatalf("knowledge queries = %d, want 2 (broad + refined)", len(knowledgeSrc.queries))
	}
}

func TestRetrievalRefinedQueryTargetsUsagePatterns(t *testing.T) {
	usageSrc := &stubUsage{records: []usage.Record{
		feature("Dashboard Analytics", 142, usage.IntensityHigh),
		feature("Data Export", 12, usage.IntensityLow),
		feature("Advanced Reporting", 0, usage.IntensityNone),
	}}
	knowledgeSrc := &stubKnowledge{}
	agent := NewRetrievalAgent(usageSrc, knowledgeSrc, testLogger())

	if _, err := agent.Run(context.Background(), "cust_1", 90); err != nil {
		t.Fatal(err)
	}

	refined := knowledgeSrc.queries[len(knowledgeSrc.queries)-1]
	if !strings.Contains(refined, "adoption best practices for Data Export Advanced Reporting") {
		t.Fatalf("refined query missing adoption clause: %q", refined)
	}
	if !strings.Contains(refined, "upsell opportunities for customers using Dashboard Analytics") {
		t.Fatalf("refined query missing upsell clause: %q", refined)
	}
}

func TestRetrievalDegradesOnOpenCircuit(t *testing.T) {
	usageSrc := &stubUsage{err: fmt.Errorf("usage trends: %w", resilience.ErrCircuitOpen)}
	knowledgeSrc := &stubKnowledge{search: func(string, int) ([]knowledge.Article, error) {
		return []knowledge.Article{article("kb_1", 0.9)}, nil
	}}
	agent := NewRetrievalAgent(usageSrc, knowledgeSrc, testLogger())

	res, err := agent.Run(context.Background(), "cust_1", 90)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if len(res.UsageData) != 0 {
		t.Fatalf("usage records = %d, want 0", len(res.UsageData))
	}
	if len(res.Articles) != 1 {
		t.Fatalf("articles = %d, want 1", len(res.Articles))
	}
	// No usage data means no refined search.
	if len(knowledgeSrc.queries) != 1 {
		t.Fatalf("knowledge queries = %d, want 1", len(knowledgeSrc.queries))
	}
}

func TestRetrievalFailsOnOtherUsageErrors(t *testing.T) {
	usageSrc := &stubUsage{err: errors.New("connection refused")}
	agent := NewRetrievalAgent(usageSrc, &stubKnowledge{}, testLogger())

	if _, err := agent.Run(context.Background(), "cust_1", 90); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetrievalDedupesAndSortsArticles(t *testing.T) {
	got := dedupeArticles([]knowledge.Article{
		article("kb_1", 0.7),
		article("kb_2", 0.9),
		article("kb_1", 0.7),
		article("kb_3", 0.8),
	})

	if len(got) != 3 {
		t.Fatalf("articles = %d, want 3", len(got))
	}
	for i, want := range []string{"kb_2", "kb_3", "kb_1"} {
		if got[i].ID != want {
			t.Fatalf("article[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestRetrievalConfidence(t *testing.T) {
	records := []usage.Record{
		feature("A", 10, usage.IntensityHigh),
		feature("B", 1, usage.IntensityLow),
	}
	articles := []knowledge.Article{article("kb_1", 0.9), article("kb_2", 0.7)}

	// usage 2/10, relevance avg 0.8 * 0.4, mixed pattern 0.2.
	want := 0.2 + 0.8*0.4 + 0.2
	got := retrievalConfidence(records, articles)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", got, want)
	}

	if got := retrievalConfidence(nil, nil); got != 0 {
		t.Fatalf("confidence = %v, want 0", got)
	}
}

func TestRetrievalValidatesInput(t *testing.T) {
	agent := NewRetrievalAgent(&stubUsage{}, &stubKnowledge{}, testLogger())

	if _, err := agent.Run(context.Background(), "", 90); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := agent.Run(context.Background(), "cust_1", -1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
