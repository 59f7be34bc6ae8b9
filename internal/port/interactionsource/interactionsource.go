// Package interactionsource defines the port for support interaction history.
package interactionsource

import (
	"context"

	"github.com/supportiq/supportiq/internal/domain/interaction"
)

// Source is the port interface for fetching customer interaction events.
type Source interface {
	// Interactions returns the customer's interaction events from the
	// last sinceDays, newest first. sinceDays must be positive.
	Interactions(ctx context.Context, customerID string, sinceDays int) ([]interaction.Event, error)
}
