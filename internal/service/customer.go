package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/supportiq/supportiq/internal/domain"
	"github.com/supportiq/supportiq/internal/domain/customer"
	"github.com/supportiq/supportiq/internal/domain/usage"
	"github.com/supportiq/supportiq/internal/port/cache"
	"github.com/supportiq/supportiq/internal/port/database"
	"github.com/supportiq/supportiq/internal/port/interactionsource"
	"github.com/supportiq/supportiq/internal/port/usagesource"
)

const (
	searchLimit       = 20
	profileWindowDays = 30
)

// UsageSummary condenses a customer's feature usage for the profile view.
type UsageSummary struct {
	TotalFeatures         int      `json:"total_features"`
	ActiveFeatures        int      `json:"active_features"`
	TotalUsageCount       int      `json:"total_usage_count"`
	HighIntensityFeatures []string `json:"high_intensity_features"`
}

// SentimentIndicators condenses recent interaction sentiment for the
// profile view.
type SentimentIndicators struct {
	Score            float64 `json:"score"`
	InteractionCount int     `json:"interaction_count"`
	UnresolvedCount  int     `json:"unresolved_count"`
}

// Profile is the support agent's at-a-glance view of a customer.
type Profile struct {
	Customer  customer.Customer   `json:"customer"`
	Usage     UsageSummary        `json:"usage_summary"`
	Sentiment SentimentIndicators `json:"sentiment_indicators"`
}

// CustomerService serves customer lookup and profile aggregation.
type CustomerService struct {
	store        database.Store
	usage        usagesource.Source
	interactions interactionsource.Source
	cache        cache.Cache
	profileTTL   time.Duration
	log          *slog.Logger
}

// NewCustomerService creates the customer service. cache may be nil.
func NewCustomerService(
	store database.Store,
	us usagesource.Source,
	is interactionsource.Source,
	c cache.Cache,
	profileTTL time.Duration,
	log *slog.Logger,
) *CustomerService {
	return &CustomerService{
		store:        store,
		usage:        us,
		interactions: is,
		cache:        c,
		profileTTL:   profileTTL,
		log:          log,
	}
}

// Search finds customers matching the query by name or email.
func (s *CustomerService) Search(ctx context.Context, query string) ([]customer.Customer, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	return s.store.SearchCustomers(ctx, query, searchLimit)
}

// Profile aggregates the customer record with recent usage and sentiment.
// Profiles are cached briefly; source failures leave the affected section
// empty rather than failing the whole profile.
func (s *CustomerService) Profile(ctx context.Context, customerID string) (*Profile, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}

	key := "customer_profile:" + customerID
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var p Profile
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	cust, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		Customer: *cust,
		Usage:    UsageSummary{HighIntensityFeatures: []string{}},
	}

	records, err := s.usage.UsageTrends(ctx, customerID, profileWindowDays)
	if err != nil {
		s.log.WarnContext(ctx, "profile usage unavailable", "customer_id", customerID, "error", err)
	} else {
		p.Usage = summarizeUsage(records)
	}

	events, err := s.interactions.Interactions(ctx, customerID, profileWindowDays)
	if err != nil {
		s.log.WarnContext(ctx, "profile interactions unavailable", "customer_id", customerID, "error", err)
	} else {
		p.Sentiment = SentimentIndicators{
			Score:            weightedSentiment(events),
			InteractionCount: len(events),
		}
		for _, e := range events {
			if e.Unresolved() {
				p.Sentiment.UnresolvedCount++
			}
		}
	}

	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := s.cache.Set(ctx, key, data, s.profileTTL); err != nil {
				s.log.WarnContext(ctx, "failed to cache profile", "customer_id", customerID, "error", err)
			}
		}
	}

	return p, nil
}

func summarizeUsage(records []usage.Record) UsageSummary {
	summary := UsageSummary{
		TotalFeatures:         len(records),
		HighIntensityFeatures: []string{},
	}
	for _, r := range records {
		summary.TotalUsageCount += r.UsageCount
		if r.UsageCount > 0 {
			summary.ActiveFeatures++
		}
		if r.Intensity == usage.IntensityHigh {
			summary.HighIntensityFeatures = append(summary.HighIntensityFeatures, r.FeatureName)
		}
	}
	return summary
}
