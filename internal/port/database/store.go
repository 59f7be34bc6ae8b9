// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/supportiq/supportiq/internal/domain/contribution"
	"github.com/supportiq/supportiq/internal/domain/customer"
	"github.com/supportiq/supportiq/internal/domain/recommendation"
)

// Store is the port interface for database operations.
type Store interface {
	// Recommendations
	SaveRecommendations(ctx context.Context, recs []recommendation.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*recommendation.Recommendation, error)
	PastRecommendations(ctx context.Context, customerID string, since time.Time) ([]recommendation.Recommendation, error)
	UpdateOutcome(ctx context.Context, id string, status recommendation.OutcomeStatus, agentID, feedback string, at time.Time) (*recommendation.Recommendation, error)

	// Agent contributions
	SaveContributions(ctx context.Context, contribs []contribution.Contribution) error
	ContributionsByCycle(ctx context.Context, cycleID string) ([]contribution.Contribution, error)

	// Customers
	GetCustomer(ctx context.Context, id string) (*customer.Customer, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]customer.Customer, error)
}
