// Package contentsafety provides an HTTP client for the content safety
// moderation service. Any transport or API failure is treated as unsafe so
// that unchecked text never reaches a customer.
package contentsafety

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
	"github.com/supportiq/supportiq/internal/port/safety"
)

// severityThresholds maps harm categories to the maximum allowed severity.
// A reported severity strictly above the threshold blocks the text.
var severityThresholds = map[string]int{
	"hate":      2,
	"self_harm": 2,
	"sexual":    4,
	"violence":  2,
}

// Client talks to the content safety analyze API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a content safety client.
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

type analyzeRequest struct {
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
}

type analyzeResponse struct {
	CategoriesAnalysis []struct {
		Category string `json:"category"`
		Severity int    `json:"severity"`
	} `json:"categoriesAnalysis"`
}

// Validate analyzes a single text. On any error the text is blocked.
func (c *Client) Validate(ctx context.Context, text string) (safety.Result, error) {
	ctx, span := otel.StartSourceSpan(ctx, "content_safety", "analyze")
	defer span.End()

	res, err := c.analyze(ctx, text)
	if err != nil {
		c.log.WarnContext(ctx, "content safety analyze failed, blocking text", "error", err)
		return safety.Result{
			IsSafe:            false,
			BlockedCategories: []string{"api_error"},
		}, nil
	}
	return res, nil
}

// ValidateBatch analyzes each text and returns results keyed by the text
// itself. Texts whose analysis fails are blocked.
func (c *Client) ValidateBatch(ctx context.Context, texts []string) (map[string]safety.Result, error) {
	results := make(map[string]safety.Result, len(texts))
	for _, t := range texts {
		res, err := c.Validate(ctx, t)
		if err != nil {
			res = safety.Result{IsSafe: false, BlockedCategories: []string{"api_error"}}
		}
		results[t] = res
	}
	return results, nil
}

func (c *Client) analyze(ctx context.Context, text string) (safety.Result, error) {
	categories := make([]string, 0, len(severityThresholds))
	for cat := range severityThresholds {
		categories = append(categories, cat)
	}

	payload, err := json.Marshal(analyzeRequest{Text: text, Categories: categories})
	if err != nil {
		return safety.Result{}, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/contentsafety/text:analyze", bytes.NewReader(payload))
	if err != nil {
		return safety.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return safety.Result{}, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return safety.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return safety.Result{}, fmt.Errorf("content safety API error %d: %s", resp.StatusCode, string(data))
	}

	var out analyzeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return safety.Result{}, fmt.Errorf("unmarshal analyze response: %w", err)
	}

	result := safety.Result{
		IsSafe:             true,
		SeverityByCategory: make(map[string]int, len(out.CategoriesAnalysis)),
	}
	for _, ca := range out.CategoriesAnalysis {
		result.SeverityByCategory[ca.Category] = ca.Severity
		threshold, ok := severityThresholds[ca.Category]
		if ok && ca.Severity > threshold {
			result.IsSafe = false
			result.BlockedCategories = append(result.BlockedCategories, ca.Category)
		}
	}
	return result, nil
}
