// Package contribution defines per-agent audit records for a generation cycle.
package contribution

import (
	"fmt"
	"time"

	"github.com/supportiq/supportiq/internal/domain"
)

// AgentType names a pipeline stage.
type AgentType string

// Pipeline stages that record contributions.
const (
	AgentRetrieval  AgentType = "Retrieval"
	AgentSentiment  AgentType = "Sentiment"
	AgentReasoning  AgentType = "Reasoning"
	AgentValidation AgentType = "Validation"
)

// Contribution captures what one agent consumed and produced during a
// generation cycle, for explainability.
type Contribution struct {
	ID              string         `json:"id"`
	CycleID         string         `json:"cycle_id"`
	AgentType       AgentType      `json:"agent_type"`
	InputSummary    map[string]any `json:"input_summary"`
	OutputSummary   map[string]any `json:"output_summary"`
	Confidence      float64        `json:"confidence"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Validate checks field invariants.
func (c Contribution) Validate() error {
	if c.CycleID == "" {
		return fmt.Errorf("%w: cycle_id is required", domain.ErrValidation)
	}
	switch c.AgentType {
	case AgentRetrieval, AgentSentiment, AgentReasoning, AgentValidation:
	default:
		return fmt.Errorf("%w: unknown agent_type %q", domain.ErrValidation, c.AgentType)
	}
	if len(c.InputSummary) == 0 {
		return fmt.Errorf("%w: input_summary cannot be empty", domain.ErrValidation)
	}
	if len(c.OutputSummary) == 0 {
		return fmt.Errorf("%w: output_summary cannot be empty", domain.ErrValidation)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be within [0, 1]", domain.ErrValidation)
	}
	if c.ExecutionTimeMS <= 0 {
		return fmt.Errorf("%w: execution_time_ms must be > 0", domain.ErrValidation)
	}
	return nil
}
