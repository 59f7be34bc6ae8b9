package inmem

import (
	"context"
	"time"

	"github.com/supportiq/supportiq/internal/domain/interaction"
)

// InteractionSource serves canned support interaction history.
type InteractionSource struct{}

// NewInteractionSource creates a fixture-backed interaction source.
func NewInteractionSource() *InteractionSource {
	return &InteractionSource{}
}

// Interactions returns fixture events within sinceDays, newest first.
func (s *InteractionSource) Interactions(_ context.Context, customerID string, sinceDays int) ([]interaction.Event, error) {
	now := time.Now().UTC()
	all := []interaction.Event{
		{
			ID:               "interaction_" + customerID + "_1",
			CustomerID:       customerID,
			Type:             interaction.TypeTicket,
			Timestamp:        now.Add(-5 * 24 * time.Hour),
			AgentID:          "agent_jones",
			SentimentScore:   -0.3,
			Topics:           []string{"billing", "invoice"},
			ResolutionStatus: interaction.ResolutionResolved,
			DurationSeconds:  1800,
		},
		{
			ID:               "interaction_" + customerID + "_2",
			CustomerID:       customerID,
			Type:             interaction.TypeChat,
			Timestamp:        now.Add(-15 * 24 * time.Hour),
			AgentID:          "agent_smith",
			SentimentScore:   0.7,
			Topics:           []string{"onboarding", "training"},
			ResolutionStatus: interaction.ResolutionResolved,
			DurationSeconds:  900,
		},
		{
			ID:               "interaction_" + customerID + "_3",
			CustomerID:       customerID,
			Type:             interaction.TypeCall,
			Timestamp:        now.Add(-30 * 24 * time.Hour),
			AgentID:          "agent_jones",
			SentimentScore:   0.2,
			Topics:           []string{"api", "integration"},
			ResolutionStatus: interaction.ResolutionResolved,
			DurationSeconds:  2400,
		},
	}

	cutoff := now.Add(-time.Duration(sinceDays) * 24 * time.Hour)
	events := make([]interaction.Event, 0, len(all))
	for _, e := range all {
		if !e.Timestamp.Before(cutoff) {
			events = append(events, e)
		}
	}
	return events, nil
}
