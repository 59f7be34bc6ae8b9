// Package inmem provides in-memory data sources for local development mode.
// The fixtures cover the feature spread the pipeline cares about: heavy,
// moderate, light, and unused features.
package inmem

import (
	"context"
	"strconv"
	"time"

	"github.com/supportiq/supportiq/internal/domain/usage"
)

// UsageSource serves canned usage trends for any customer.
type UsageSource struct{}

// NewUsageSource creates a fixture-backed usage source.
func NewUsageSource() *UsageSource {
	return &UsageSource{}
}

// UsageTrends returns fixture usage records attributed to the customer.
func (s *UsageSource) UsageTrends(_ context.Context, customerID string, days int) ([]usage.Record, error) {
	now := time.Now().UTC()
	window := "last_" + strconv.Itoa(days) + "_days"
	return []usage.Record{
		{
			ID:          "usage_" + customerID + "_1",
			CustomerID:  customerID,
			FeatureName: "Dashboard Analytics",
			UsageCount:  142,
			LastUsedAt:  now.Add(-2 * time.Hour),
			Intensity:   usage.IntensityHigh,
			TimeWindow:  window,
		},
		{
			ID:          "usage_" + customerID + "_2",
			CustomerID:  customerID,
			FeatureName: "API Integration",
			UsageCount:  87,
			LastUsedAt:  now.Add(-26 * time.Hour),
			Intensity:   usage.IntensityMedium,
			TimeWindow:  window,
		},
		{
			ID:          "usage_" + customerID + "_3",
			CustomerID:  customerID,
			FeatureName: "Data Export",
			UsageCount:  12,
			LastUsedAt:  now.Add(-7 * 24 * time.Hour),
			Intensity:   usage.IntensityLow,
			TimeWindow:  window,
		},
		{
			ID:          "usage_" + customerID + "_4",
			CustomerID:  customerID,
			FeatureName: "Advanced Reporting",
			UsageCount:  0,
			LastUsedAt:  time.Time{},
			Intensity:   usage.IntensityNone,
			TimeWindow:  window,
		},
		{
			ID:          "usage_" + customerID + "_5",
			CustomerID:  customerID,
			FeatureName: "Custom Workflows",
			UsageCount:  34,
			LastUsedAt:  now.Add(-3 * 24 * time.Hour),
			Intensity:   usage.IntensityMedium,
			TimeWindow:  window,
		},
	}, nil
}
