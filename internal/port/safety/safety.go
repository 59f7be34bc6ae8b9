// Package safety defines the port for content moderation of generated text.
package safety

import "context"

// Result is the moderation outcome for a single text.
type Result struct {
	IsSafe             bool           `json:"is_safe"`
	SeverityByCategory map[string]int `json:"severity_scores"`
	BlockedCategories  []string       `json:"blocked_categories"`
}

// Validator is the port interface for content safety screening.
// Implementations fail closed: when moderation cannot be performed the
// affected texts come back blocked, never silently passed.
type Validator interface {
	// ValidateBatch moderates each text and returns a result keyed by
	// the original text. An empty batch is a validation error.
	ValidateBatch(ctx context.Context, texts []string) (map[string]Result, error)
}
