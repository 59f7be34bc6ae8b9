package inmem

import (
	"context"
	"sort"
	"strings"

	"github.com/supportiq/supportiq/internal/domain/knowledge"
)

// KnowledgeSource serves canned knowledge base articles with naive term
// matching in place of semantic search.
type KnowledgeSource struct {
	articles []knowledge.Article
}

// NewKnowledgeSource creates a fixture-backed knowledge source.
func NewKnowledgeSource() *KnowledgeSource {
	return &KnowledgeSource{
		articles: []knowledge.Article{
			{
				ID:             "kb_article_1234",
				Title:          "Advanced Reporting Best Practices",
				Content:        "Advanced Reporting gives teams self-serve insight into account health. Start with the prebuilt templates, then schedule weekly digests for stakeholders.",
				RelevanceScore: 0.92,
				Category:       "Feature Adoption",
				Tags:           []string{"reporting", "adoption", "best-practices"},
			},
			{
				ID:             "kb_article_2345",
				Title:          "Getting Started with Data Export",
				Content:        "Data Export moves your records into external warehouses. Configure scheduled exports to keep downstream systems in sync without manual pulls.",
				RelevanceScore: 0.88,
				Category:       "Feature Adoption",
				Tags:           []string{"export", "adoption", "onboarding"},
			},
			{
				ID:             "kb_article_3456",
				Title:          "Upsell Guide: Enterprise Tier Benefits",
				Content:        "Premium plans unlock unlimited API calls, dedicated support, and advanced security controls for teams with heavy integration workloads.",
				RelevanceScore: 0.85,
				Category:       "Upsell Guide",
				Tags:           []string{"upsell", "enterprise", "pricing"},
			},
			{
				ID:             "kb_article_4567",
				Title:          "Troubleshooting API Integration Errors",
				Content:        "Common API Integration failures come from expired tokens and rate limits. Rotate credentials quarterly and enable retry with backoff.",
				RelevanceScore: 0.81,
				Category:       "Troubleshooting",
				Tags:           []string{"api", "troubleshooting"},
			},
			{
				ID:             "kb_article_5678",
				Title:          "Custom Workflows Automation Patterns",
				Content:        "Custom Workflows reduce manual triage. Map your escalation paths first, then automate the highest-volume routes.",
				RelevanceScore: 0.78,
				Category:       "Feature Adoption",
				Tags:           []string{"workflows", "automation", "adoption"},
			},
		},
	}
}

// Search scores fixture articles by query term overlap and returns up to
// topK results ordered by relevance.
func (s *KnowledgeSource) Search(_ context.Context, query string, topK int, categoryFilter string) ([]knowledge.Article, error) {
	terms := strings.Fields(strings.ToLower(query))

	var matched []knowledge.Article
	for _, a := range s.articles {
		if categoryFilter != "" && !strings.EqualFold(a.Category, categoryFilter) {
			continue
		}
		if matchesAny(a, terms) {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		for _, a := range s.articles {
			if categoryFilter == "" || strings.EqualFold(a.Category, categoryFilter) {
				matched = append(matched, a)
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RelevanceScore > matched[j].RelevanceScore
	})
	if topK > 0 && len(matched) > topK {
		matched = matched[:topK]
	}
	return matched, nil
}

func matchesAny(a knowledge.Article, terms []string) bool {
	haystack := strings.ToLower(a.Title + " " + a.Content + " " + a.Category + " " + strings.Join(a.Tags, " "))
	for _, t := range terms {
		if len(t) < 4 {
			continue
		}
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
