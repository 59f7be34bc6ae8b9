// Package usage defines product usage telemetry records for a customer.
package usage

import (
	"fmt"
	"time"

	"github.com/supportiq/supportiq/internal/domain"
)

// Intensity classifies how heavily a feature is used within a time window.
type Intensity string

// Intensity values, ordered from no usage to heavy usage.
const (
	IntensityNone   Intensity = "None"
	IntensityLow    Intensity = "Low"
	IntensityMedium Intensity = "Medium"
	IntensityHigh   Intensity = "High"
)

// Valid reports whether i is a known intensity value.
func (i Intensity) Valid() bool {
	switch i {
	case IntensityNone, IntensityLow, IntensityMedium, IntensityHigh:
		return true
	}
	return false
}

// Record is a per-feature usage measurement for one customer over a window.
type Record struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	FeatureName string    `json:"feature_name"`
	UsageCount  int       `json:"usage_count"`
	LastUsedAt  time.Time `json:"last_used_at"`
	Intensity   Intensity `json:"usage_intensity"`
	TimeWindow  string    `json:"time_window"`
}

// Validate checks field invariants.
func (r Record) Validate() error {
	if r.CustomerID == "" {
		return fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if r.FeatureName == "" {
		return fmt.Errorf("%w: feature_name is required", domain.ErrValidation)
	}
	if r.UsageCount < 0 {
		return fmt.Errorf("%w: usage_count must be >= 0", domain.ErrValidation)
	}
	if r.LastUsedAt.After(time.Now()) {
		return fmt.Errorf("%w: last_used_at cannot be in the future", domain.ErrValidation)
	}
	if !r.Intensity.Valid() {
		return fmt.Errorf("%w: unknown usage_intensity %q", domain.ErrValidation, r.Intensity)
	}
	return nil
}
