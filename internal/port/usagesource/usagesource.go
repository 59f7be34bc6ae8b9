// Package usagesource defines the port for product usage telemetry.
package usagesource

import (
	"context"

	"github.com/supportiq/supportiq/internal/domain/usage"
)

// Source is the port interface for fetching per-feature usage trends.
type Source interface {
	// UsageTrends returns usage records for the customer over the last
	// days. days must be positive.
	UsageTrends(ctx context.Context, customerID string, days int) ([]usage.Record, error)
}
