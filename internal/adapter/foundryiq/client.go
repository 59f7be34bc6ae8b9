// Package foundryiq provides an HTTP client for the Foundry IQ knowledge
// base search service.
package foundryiq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/knowledge"
)

// Client talks to the Foundry IQ semantic search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Foundry IQ client.
func NewClient(baseURL, apiKey string, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

type searchRequest struct {
	Query          string `json:"query"`
	TopK           int    `json:"top_k"`
	CategoryFilter string `json:"category_filter,omitempty"`
}

type articleRecord struct {
	ArticleID      string   `json:"article_id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	RelevanceScore float64  `json:"relevance_score"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
}

// Search runs a semantic query against the knowledge base and returns up
// to topK articles ordered by relevance.
func (c *Client) Search(ctx context.Context, query string, topK int, categoryFilter string) ([]knowledge.Article, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", domain.ErrValidation)
	}

	ctx, span := otel.StartSourceSpan(ctx, "foundryiq", "search")
	defer span.End()

	payload, err := json.Marshal(searchRequest{Query: query, TopK: topK, CategoryFilter: categoryFilter})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("foundryiq API error %d: %s", resp.StatusCode, string(data))
	}

	var out struct {
		Articles []articleRecord `json:"articles"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}

	articles := make([]knowledge.Article, 0, len(out.Articles))
	for _, a := range out.Articles {
		articles = append(articles, knowledge.Article{
			ID:             a.ArticleID,
			Title:          a.Title,
			Content:        a.Content,
			RelevanceScore: a.RelevanceScore,
			Category:       a.Category,
			Tags:           a.Tags,
		})
	}
	return articles, nil
}
