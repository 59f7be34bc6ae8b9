package fabriciq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/interaction"
	"github.com/supportiq/supportiq/internal/resilience"
)

// InteractionClient fetches customer interaction history from the Fabric IQ
// CRM export. It shares the usage client's circuit breaker so an outage on
// either endpoint trips both.
type InteractionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
	log        *slog.Logger
}

// NewInteractionClient creates a Fabric IQ interaction history client.
func NewInteractionClient(baseURL, apiKey string, breaker *resilience.Breaker, log *slog.Logger) *InteractionClient {
	return &InteractionClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
		log:     log,
	}
}

// interactionRecord is the wire shape of one interaction event.
type interactionRecord struct {
	InteractionID    string    `json:"interaction_id"`
	CustomerID       string    `json:"customer_id"`
	InteractionType  string    `json:"interaction_type"`
	Timestamp        time.Time `json:"timestamp"`
	AgentID          string    `json:"agent_id"`
	SentimentScore   float64   `json:"sentiment_score"`
	Topics           []string  `json:"topics"`
	ResolutionStatus string    `json:"resolution_status"`
	DurationSeconds  int       `json:"duration_seconds"`
}

// Interactions returns the customer's interaction events from the last
// sinceDays, newest first.
func (c *InteractionClient) Interactions(ctx context.Context, customerID string, sinceDays int) ([]interaction.Event, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if sinceDays <= 0 {
		return nil, fmt.Errorf("%w: sinceDays must be positive", domain.ErrValidation)
	}

	ctx, span := otel.StartSourceSpan(ctx, "fabriciq", "interactions")
	defer span.End()

	q := url.Values{}
	q.Set("customer_id", customerID)
	q.Set("days", strconv.Itoa(sinceDays))

	body, err := doRequest(ctx, c.httpClient, c.breaker, c.baseURL+"/api/v1/interactions?"+q.Encode(), c.apiKey)
	if err != nil {
		return nil, fmt.Errorf("interactions: %w", err)
	}

	var resp struct {
		Interactions []interactionRecord `json:"interactions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal interactions: %w", err)
	}

	events := make([]interaction.Event, 0, len(resp.Interactions))
	for _, rec := range resp.Interactions {
		events = append(events, interaction.Event{
			ID:               rec.InteractionID,
			CustomerID:       rec.CustomerID,
			Type:             interaction.Type(rec.InteractionType),
			Timestamp:        rec.Timestamp,
			AgentID:          rec.AgentID,
			SentimentScore:   rec.SentimentScore,
			Topics:           rec.Topics,
			ResolutionStatus: interaction.ResolutionStatus(rec.ResolutionStatus),
			DurationSeconds:  rec.DurationSeconds,
		})
	}
	return events, nil
}
