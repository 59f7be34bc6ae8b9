// Package fabriciq provides an HTTP client for the Fabric IQ usage
// telemetry service.
package fabriciq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/usage"
	"github.com/supportiq/supportiq/internal/port/cache"
	"github.com/supportiq/supportiq/internal/resilience"
)

// Client talks to the Fabric IQ usage trends API. All calls go through the
// injected circuit breaker; successful responses are cached.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
	cache      cache.Cache
	cacheTTL   time.Duration
	log        *slog.Logger
}

// NewClient creates a Fabric IQ client. cache may be nil to disable caching.
func NewClient(baseURL, apiKey string, breaker *resilience.Breaker, c cache.Cache, cacheTTL time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker:  breaker,
		cache:    c,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// usageRecord is the wire shape of one usage trend entry.
type usageRecord struct {
	UsageID           string    `json:"usage_id"`
	CustomerID        string    `json:"customer_id"`
	FeatureName       string    `json:"feature_name"`
	UsageCount        int       `json:"usage_count"`
	LastUsedTimestamp time.Time `json:"last_used_timestamp"`
	IntensityScore    string    `json:"intensity_score"`
	TimeWindow        string    `json:"time_window"`
}

// UsageTrends returns per-feature usage records for the customer over the
// last days. Results are cached per customer and window.
func (c *Client) UsageTrends(ctx context.Context, customerID string, days int) ([]usage.Record, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", domain.ErrValidation)
	}

	ctx, span := otel.StartSourceSpan(ctx, "fabriciq", "usage_trends")
	defer span.End()

	key := fmt.Sprintf("usage_trends:%s:%d", customerID, days)
	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var records []usage.Record
			if err := json.Unmarshal(data, &records); err == nil {
				c.log.DebugContext(ctx, "usage trends cache hit", "customer_id", customerID)
				return records, nil
			}
		}
	}

	q := url.Values{}
	q.Set("customer_id", customerID)
	q.Set("days", strconv.Itoa(days))

	body, err := c.doRequest(ctx, "/api/v1/usage-trends?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("usage trends: %w", err)
	}

	var resp struct {
		UsageData []usageRecord `json:"usage_data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal usage trends: %w", err)
	}

	records := make([]usage.Record, 0, len(resp.UsageData))
	for _, u := range resp.UsageData {
		records = append(records, usage.Record{
			ID:          u.UsageID,
			CustomerID:  u.CustomerID,
			FeatureName: u.FeatureName,
			UsageCount:  u.UsageCount,
			LastUsedAt:  u.LastUsedTimestamp,
			Intensity:   usage.Intensity(u.IntensityScore),
			TimeWindow:  u.TimeWindow,
		})
	}

	if c.cache != nil {
		if data, err := json.Marshal(records); err == nil {
			if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
				c.log.WarnContext(ctx, "usage trends cache write failed", "error", err)
			}
		}
	}

	return records, nil
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	return doRequest(ctx, c.httpClient, c.breaker, c.baseURL+path, c.apiKey)
}

// doRequest issues a GET and returns the response body, routing the call
// through the breaker when one is configured.
func doRequest(ctx context.Context, client *http.Client, breaker *resilience.Breaker, url, apiKey string) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("fabriciq API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if breaker != nil {
		if err := breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
