// Package recommendation defines the recommendation aggregate and its
// outcome lifecycle.
package recommendation

import (
	"fmt"
	"strings"
	"time"

	"github.com/supportiq/supportiq/internal/domain"
)

// Type classifies a recommendation.
type Type string

// Recommendation types.
const (
	TypeAdoption Type = "Adoption"
	TypeUpsell   Type = "Upsell"
)

// OutcomeStatus tracks what happened to a recommendation after generation.
type OutcomeStatus string

// Outcome lifecycle states.
const (
	OutcomePending   OutcomeStatus = "Pending"
	OutcomeDelivered OutcomeStatus = "Delivered"
	OutcomeAccepted  OutcomeStatus = "Accepted"
	OutcomeDeclined  OutcomeStatus = "Declined"
	OutcomeExcluded  OutcomeStatus = "Excluded"
)

// Valid reports whether s is a known outcome status.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomePending, OutcomeDelivered, OutcomeAccepted, OutcomeDeclined, OutcomeExcluded:
		return true
	}
	return false
}

// transitions holds the allowed outcome state machine edges.
var transitions = map[OutcomeStatus][]OutcomeStatus{
	OutcomePending:   {OutcomeDelivered},
	OutcomeDelivered: {OutcomeAccepted, OutcomeDeclined},
	OutcomeDeclined:  {OutcomeExcluded},
}

// CanTransition reports whether the outcome state machine allows from -> to.
func CanTransition(from, to OutcomeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DataSource records one input that contributed to a recommendation.
type DataSource struct {
	SourceType  string `json:"source_type"`
	SourceID    string `json:"source_id"`
	Description string `json:"description,omitempty"`
}

// ReasoningChain is the per-agent explanation trail attached to a
// recommendation. Keys are agent names, values are structured notes.
type ReasoningChain map[string]any

// MaxTextLength bounds recommendation text shown to support agents.
const MaxTextLength = 1000

// Recommendation is a generated suggestion for a support agent to deliver
// to a customer, together with its provenance and outcome tracking.
type Recommendation struct {
	ID              string         `json:"id"`
	CustomerID      string         `json:"customer_id"`
	Type            Type           `json:"recommendation_type"`
	Text            string         `json:"recommendation_text"`
	ConfidenceScore float64        `json:"confidence_score"`
	DataSources     []DataSource   `json:"data_sources"`
	ReasoningChain  ReasoningChain `json:"reasoning_chain"`
	GeneratedAt     time.Time      `json:"generated_at"`
	OutcomeStatus   OutcomeStatus  `json:"outcome_status"`
	DeliveredBy     string         `json:"delivered_by_agent_id,omitempty"`
	OutcomeAt       *time.Time     `json:"outcome_timestamp,omitempty"`
	Feedback        string         `json:"feedback,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Validate checks field invariants, including the rule that any outcome
// beyond Pending carries the delivering agent and a timestamp.
func (r Recommendation) Validate() error {
	if r.CustomerID == "" {
		return fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if r.Type != TypeAdoption && r.Type != TypeUpsell {
		return fmt.Errorf("%w: unknown recommendation_type %q", domain.ErrValidation, r.Type)
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return fmt.Errorf("%w: recommendation_text is required", domain.ErrValidation)
	}
	if len(r.Text) > MaxTextLength {
		return fmt.Errorf("%w: recommendation_text exceeds %d characters", domain.ErrValidation, MaxTextLength)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence_score must be within [0, 1]", domain.ErrValidation)
	}
	if len(r.DataSources) == 0 {
		return fmt.Errorf("%w: at least one data source is required", domain.ErrValidation)
	}
	if len(r.ReasoningChain) == 0 {
		return fmt.Errorf("%w: reasoning_chain cannot be empty", domain.ErrValidation)
	}
	if !r.OutcomeStatus.Valid() {
		return fmt.Errorf("%w: unknown outcome_status %q", domain.ErrValidation, r.OutcomeStatus)
	}
	if r.OutcomeStatus != OutcomePending {
		if r.DeliveredBy == "" {
			return fmt.Errorf("%w: delivered_by_agent_id is required for outcome %s", domain.ErrValidation, r.OutcomeStatus)
		}
		if r.OutcomeAt == nil {
			return fmt.Errorf("%w: outcome_timestamp is required for outcome %s", domain.ErrValidation, r.OutcomeStatus)
		}
	}
	return nil
}

// NormalizedText returns the text in the canonical form used for
// duplicate comparison.
func (r Recommendation) NormalizedText() string {
	return Normalize(r.Text)
}

// Normalize lowercases and trims recommendation text for comparison.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
