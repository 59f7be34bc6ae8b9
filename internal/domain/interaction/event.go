// Package interaction defines customer support interaction events.
package interaction

import (
	"fmt"
	"time"

	"github.com/supportiq/supportiq/internal/domain"
)

// Type classifies the channel of a support interaction.
type Type string

// Interaction channels.
const (
	TypeTicket Type = "Ticket"
	TypeChat   Type = "Chat"
	TypeCall   Type = "Call"
)

// ResolutionStatus tracks whether an interaction's issue was resolved.
type ResolutionStatus string

// Resolution states.
const (
	ResolutionResolved  ResolutionStatus = "Resolved"
	ResolutionPending   ResolutionStatus = "Pending"
	ResolutionEscalated ResolutionStatus = "Escalated"
)

// Event is a single support interaction with its sentiment annotation.
type Event struct {
	ID               string           `json:"id"`
	CustomerID       string           `json:"customer_id"`
	Type             Type             `json:"interaction_type"`
	Timestamp        time.Time        `json:"timestamp"`
	AgentID          string           `json:"agent_id,omitempty"`
	SentimentScore   float64          `json:"sentiment_score"`
	Topics           []string         `json:"topics,omitempty"`
	ResolutionStatus ResolutionStatus `json:"resolution_status"`
	DurationSeconds  int              `json:"duration_seconds,omitempty"`
}

// Validate checks field invariants.
func (e Event) Validate() error {
	if e.CustomerID == "" {
		return fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	switch e.Type {
	case TypeTicket, TypeChat, TypeCall:
	default:
		return fmt.Errorf("%w: unknown interaction_type %q", domain.ErrValidation, e.Type)
	}
	if e.Timestamp.After(time.Now()) {
		return fmt.Errorf("%w: timestamp cannot be in the future", domain.ErrValidation)
	}
	if e.SentimentScore < -1 || e.SentimentScore > 1 {
		return fmt.Errorf("%w: sentiment_score must be within [-1, 1]", domain.ErrValidation)
	}
	switch e.ResolutionStatus {
	case ResolutionResolved, ResolutionPending, ResolutionEscalated:
	default:
		return fmt.Errorf("%w: unknown resolution_status %q", domain.ErrValidation, e.ResolutionStatus)
	}
	return nil
}

// Unresolved reports whether the interaction's issue is still open.
func (e Event) Unresolved() bool {
	return e.ResolutionStatus == ResolutionPending || e.ResolutionStatus == ResolutionEscalated
}
